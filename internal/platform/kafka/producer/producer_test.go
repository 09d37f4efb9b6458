package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{Brokers: "  "}, nil)
	assert.Error(t, err)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, splitBrokers(""))
}
