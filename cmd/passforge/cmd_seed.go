package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"passforge/internal/card"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo businesses, cards, and customer progress",
	Long: `Seed writes a small demo dataset into the configured store: a coffee
shop with a 10-stamp card and a yoga studio with a 20-session Gold
membership, each with one enrolled customer. Safe to run repeatedly;
rows are upserted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.close()

		if err := seedDemoData(cmd.Context(), rt); err != nil {
			return err
		}
		logger.Info("demo data seeded",
			zap.Strings("cards", []string{"card-coffee", "card-yoga"}))
		return nil
	},
}

func seedDemoData(ctx context.Context, rt *runtime) error {
	now := time.Now().UTC()
	expiry := now.AddDate(0, 0, 90)

	businesses := []*card.BusinessRecord{
		{
			ID:          "biz-coffee",
			Name:        "Bean Scene",
			Email:       "hello@beanscene.example",
			Description: "Specialty coffee roasters",
			Address:     "12 Market Lane",
			Phone:       "+1 555 0134",
		},
		{
			ID:          "biz-yoga",
			Name:        "Still Point Yoga",
			Email:       "studio@stillpoint.example",
			Description: "Vinyasa and yin classes",
			Address:     "48 River Road",
		},
	}
	for _, b := range businesses {
		if err := rt.store.PutBusiness(ctx, b); err != nil {
			return err
		}
	}

	if err := rt.store.PutStampCard(ctx, &card.StampCardRecord{
		ID:                "card-coffee",
		BusinessID:        "biz-coffee",
		Name:              "Bean Scene Loyalty",
		Description:       "Collect stamps with every drink",
		TotalStamps:       10,
		RewardDescription: "Free drink of your choice",
		BackgroundColor:   "#3D2B1F",
		ForegroundColor:   "#FFFFFF",
		LabelColor:        "#D7B899",
		LogoText:          "Bean Scene",
		Status:            string(card.StatusActive),
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		return err
	}

	if err := rt.store.PutMembershipCard(ctx, &card.MembershipCardRecord{
		ID:              "card-yoga",
		BusinessID:      "biz-yoga",
		Name:            "Still Point Gold",
		Description:     "Twenty classes over three months",
		MembershipType:  "Gold",
		TotalSessions:   20,
		Cost:            99.99,
		DurationDays:    90,
		Benefits:        []string{"Mat rental included", "Priority booking", "One guest pass"},
		BackgroundColor: "#1F3D2B",
		ForegroundColor: "#FFFFFF",
		LabelColor:      "#99D7B8",
		LogoText:        "Still Point",
		Status:          string(card.StatusActive),
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		return err
	}

	progress := []*card.CustomerProgressRecord{
		{
			CardID:        "card-coffee",
			CustomerID:    "cust-ada",
			CustomerName:  "Ada Moreno",
			CustomerEmail: "ada@example.com",
			CurrentStamps: 5,
			MemberSince:   now.AddDate(0, -2, 0),
		},
		{
			CardID:        "card-yoga",
			CustomerID:    "cust-bo",
			CustomerName:  "Bo Lindqvist",
			CustomerEmail: "bo@example.com",
			SessionsUsed:  3,
			ExpiryDate:    &expiry,
			MemberSince:   now.AddDate(0, -1, 0),
		},
	}
	for _, p := range progress {
		if err := rt.store.PutCustomerProgress(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
