package pdftext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAgenda = `CITY OF MENLO PARK
CITY COUNCIL REGULAR MEETING

CONSENT CALENDAR

J1. Adopt Resolution RES-2025-044 accepting the storm drain
    improvement project
    Staff report: https://menlopark.gov/files/sr-044.pdf

J2. Approve contract amendment with Acme Paving Inc.

PUBLIC HEARINGS

K1. Consider appeal of Planning Commission decision on 500 El
    Camino Real
`

func TestParseAgenda(t *testing.T) {
	items := ParseAgenda(sampleAgenda)
	require.Len(t, items, 3)

	assert.Equal(t, "J1.", items[0].Number)
	assert.Contains(t, items[0].Title, "Adopt Resolution RES-2025-044")
	assert.Contains(t, items[0].Title, "improvement project")
	require.Len(t, items[0].Links, 1)
	assert.Equal(t, "https://menlopark.gov/files/sr-044.pdf", items[0].Links[0])

	assert.Equal(t, "J2.", items[1].Number)
	assert.Equal(t, "K1.", items[2].Number)
	assert.Contains(t, items[2].Title, "500 El Camino Real")
}

func TestParseAgendaNumericStyles(t *testing.T) {
	text := "1. First item\n4.A. Nested item\nIV. Roman item\n"
	items := ParseAgenda(text)
	require.Len(t, items, 3)
	assert.Equal(t, "1.", items[0].Number)
	assert.Equal(t, "4.A.", items[1].Number)
	assert.Equal(t, "IV.", items[2].Number)
}

func TestParseAgendaEmpty(t *testing.T) {
	assert.Empty(t, ParseAgenda(""))
	assert.Empty(t, ParseAgenda("CITY COUNCIL\nAGENDA\n"))
}
