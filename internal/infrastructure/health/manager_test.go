package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthManagerAllHealthy(t *testing.T) {
	hm := NewHealthManager(nil)
	hm.Register("websocket", func() error { return nil })
	hm.Register("cache", func() error { return nil })

	assert.True(t, hm.IsHealthy())
	status := hm.GetStatus()
	assert.Equal(t, "Healthy", status["websocket"])
	assert.Equal(t, "Healthy", status["cache"])
}

func TestHealthManagerUnhealthyComponent(t *testing.T) {
	hm := NewHealthManager(nil)
	hm.Register("websocket", func() error { return nil })
	hm.Register("engine", func() error { return errors.New("connection refused") })

	assert.False(t, hm.IsHealthy())
	status := hm.GetStatus()
	assert.Equal(t, "Healthy", status["websocket"])
	assert.Equal(t, "Unhealthy: connection refused", status["engine"])
}

func TestHealthManagerCheckReRegistration(t *testing.T) {
	hm := NewHealthManager(nil)
	hm.Register("cache", func() error { return errors.New("slice stocks is stale") })
	assert.False(t, hm.IsHealthy())

	hm.Register("cache", func() error { return nil })
	assert.True(t, hm.IsHealthy())
}
