package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDataGetters(t *testing.T) {
	d := Data{
		"host":    "db-1",
		"port":    "5432",
		"ratio":   "0.5",
		"enabled": "true",
		"timeout": "30s",
	}

	host, exists := d.GetString("host")
	assert.True(t, exists)
	assert.Equal(t, "db-1", host)

	port, exists := d.GetInt("port")
	assert.True(t, exists)
	assert.Equal(t, 5432, port)

	port64, _ := d.GetInt64("port")
	assert.Equal(t, int64(5432), port64)

	ratio, _ := d.GetFloat64("ratio")
	assert.Equal(t, 0.5, ratio)

	enabled, _ := d.GetBool("enabled")
	assert.True(t, enabled)

	timeout, _ := d.GetDuration("timeout")
	assert.Equal(t, 30*time.Second, timeout)

	_, exists = d.GetString("missing")
	assert.False(t, exists)
}

func TestDataSetOnNilMap(t *testing.T) {
	var d Data
	d.Set("key", "value")

	v, exists := d.GetString("key")
	assert.True(t, exists)
	assert.Equal(t, "value", v)
}

func TestDataGetStruct(t *testing.T) {
	type target struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}

	d := Data{}
	d.Set("target", map[string]any{"host": "web-1", "port": 8080})

	var got target
	assert.Nil(t, d.GetStruct("target", &got))
	assert.Equal(t, "web-1", got.Host)
	assert.Equal(t, 8080, got.Port)

	assert.NotNil(t, d.GetStruct("missing", &got))
}

func TestDataClone(t *testing.T) {
	d := Data{"a": 1}
	c := d.Clone()
	c.Set("a", 2)

	orig, _ := d.GetInt("a")
	assert.Equal(t, 1, orig)

	var nilData Data
	assert.Nil(t, nilData.Clone())
}
