package flat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	got := Parse([]byte("rocket  \n\n  space\t\r\nmoon\n\n"))
	assert.Equal(t, []string{"rocket", "  space", "moon"}, got)
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse(nil))
	assert.NotNil(t, Parse(nil))
	assert.Empty(t, Parse([]byte("\n \n\t\n")))
}

func TestFormatParse(t *testing.T) {
	in := []string{"alpha", "two words", "юникод"}
	assert.Equal(t, "alpha\ntwo words\nюникод\n", string(Format(in)))
	assert.Equal(t, in, Parse(Format(in)))
	assert.Empty(t, Format(nil))
}
