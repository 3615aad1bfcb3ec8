package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInvoice = `
    INVOICE #9921
    Vendor: TechSolutions Inc
    Date: 2025-11-19
    Subtotal: $1000.00
    Tax: $180.00
    Total: $1180.00
    `

func TestParseInvoice(t *testing.T) {
	inv := ParseInvoice(sampleInvoice)
	assert.Equal(t, "9921", inv.Number)
	assert.Equal(t, "TechSolutions Inc", inv.Vendor)
	assert.Equal(t, "2025-11-19", inv.Date)
	assert.True(t, inv.HasSubtotal)
	assert.True(t, inv.HasTax)
	assert.True(t, inv.HasTotal)
	assert.Equal(t, 1000.0, inv.Subtotal)
	assert.Equal(t, 180.0, inv.Tax)
	assert.Equal(t, 1180.0, inv.Total)
}

func TestParseInvoiceVariants(t *testing.T) {
	inv := ParseInvoice("Vendor: Acme\nSub-total: 1,250.50\nTax (18%): 225.09\nTotal: $1,475.59")
	assert.Equal(t, "Acme", inv.Vendor)
	assert.Equal(t, 1250.50, inv.Subtotal)
	assert.Equal(t, 225.09, inv.Tax)
	assert.Equal(t, 1475.59, inv.Total)
	assert.Empty(t, inv.Number)
}

func TestParseInvoiceMissingFields(t *testing.T) {
	inv := ParseInvoice("just some text")
	assert.False(t, inv.HasSubtotal)
	assert.False(t, inv.HasTax)
	assert.False(t, inv.HasTotal)
	assert.Empty(t, inv.Vendor)
}

func TestParseStatementWithHeader(t *testing.T) {
	records, err := ParseStatement(sampleStatement)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, StatementRecord{Date: "2025-11-19", Description: "TechSolutions Inc", Amount: -1150}, records[1])
}

func TestParseStatementReorderedHeader(t *testing.T) {
	records, err := ParseStatement("AMOUNT,DATE,DESCRIPTION\n-20.00,2025-01-02,Fuel\n")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Fuel", records[0].Description)
	assert.Equal(t, "2025-01-02", records[0].Date)
	assert.Equal(t, -20.0, records[0].Amount)
}

func TestParseStatementPositionalAndSkips(t *testing.T) {
	records, err := ParseStatement("2025-01-01,Rent,-900\n2025-01-02,Broken,n/a\nshort\n")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Rent", records[0].Description)
}

func TestParseStatementMalformed(t *testing.T) {
	_, err := ParseStatement("DATE,DESC,AMOUNT\n\"unterminated,1,2\n")
	assert.Error(t, err)
}
