package card

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStampCard(t *testing.T) *UnifiedCardData {
	t.Helper()
	c, err := NewBuilder(testStore(), nil).Build(context.Background(), "card-coffee", "cust-1")
	require.NoError(t, err)
	return c
}

func TestValidate_OK(t *testing.T) {
	ok, errs := Validate(validStampCard(t))
	assert.True(t, ok)
	assert.Empty(t, errs)
}

func TestValidate_Malformed(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*UnifiedCardData)
		message string
	}{
		{"nil stamp details", func(c *UnifiedCardData) { c.Stamp = nil }, "stamp details are missing"},
		{"both sub-objects", func(c *UnifiedCardData) {
			c.Membership = &MembershipDetails{TotalSessions: 1, DurationDays: 1}
		}, "membership details are present"},
		{"missing business email", func(c *UnifiedCardData) { c.Business.Email = "" }, "business email"},
		{"missing business name", func(c *UnifiedCardData) { c.Business.Name = "" }, "business name"},
		{"empty barcode", func(c *UnifiedCardData) { c.Barcode.Value = "" }, "barcode value is empty"},
		{"foreign barcode", func(c *UnifiedCardData) { c.Barcode.Value = "OTHER-STAMP-x-y" }, "namespace prefix"},
		{"unknown kind", func(c *UnifiedCardData) { c.Kind = "punch" }, "unknown card kind"},
		{"customer without email", func(c *UnifiedCardData) { c.Customer.Email = "" }, "customer email"},
		{"stamp overflow", func(c *UnifiedCardData) { c.Stamp.CurrentStamps = 99 }, "out of range"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validStampCard(t)
			tc.mutate(c)

			ok, errs := Validate(c)
			assert.False(t, ok)
			require.NotEmpty(t, errs)
			assert.True(t, containsSubstring(errs, tc.message),
				"expected an error mentioning %q, got %v", tc.message, errs)
		})
	}
}

func TestValidate_NeverPanics(t *testing.T) {
	ok, errs := Validate(nil)
	assert.False(t, ok)
	assert.NotEmpty(t, errs)

	ok, errs = Validate(&UnifiedCardData{})
	assert.False(t, ok)
	assert.NotEmpty(t, errs)
}

func TestValidate_MembershipRanges(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 30)
	c := &UnifiedCardData{
		ID:           "card-yoga",
		Kind:         KindMembership,
		SerialNumber: "card-yoga-1",
		Business:     Business{ID: "biz-1", Name: "Bean Scene", Email: "owner@beanscene.example"},
		Membership: &MembershipDetails{
			MembershipType: "Gold",
			TotalSessions:  0,
			SessionsUsed:   -1,
			Cost:           -5,
			DurationDays:   0,
			ExpiryDate:     expiry,
		},
		Barcode: Barcode{Format: FormatQR, Value: BarcodeValue(KindMembership, "card-yoga", "")},
	}

	ok, errs := Validate(c)
	assert.False(t, ok)
	assert.True(t, containsSubstring(errs, "total sessions"))
	assert.True(t, containsSubstring(errs, "sessions used"))
	assert.True(t, containsSubstring(errs, "cost"))
	assert.True(t, containsSubstring(errs, "duration days"))
}

func containsSubstring(errs []string, sub string) bool {
	for _, e := range errs {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}
