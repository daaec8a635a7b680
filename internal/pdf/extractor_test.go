package pdfutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF([]byte("PK\x03\x04")))
}

func TestMalformedPDFReturnsError(t *testing.T) {
	n, err := PageCount([]byte("%PDF-1.4 truncated"))
	assert.Error(t, err)
	assert.Zero(t, n)

	_, err = FirstPageText([]byte("not a pdf"), 10)
	assert.Error(t, err)
}
