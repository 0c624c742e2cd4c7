package cache

import (
	"testing"
	"time"

	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(1 * time.Minute)

	c.Set("user1", &models.GuardView{ID: "user1", PasswordResetCount: 2})

	view, ok := c.Get("user1")
	assert.True(t, ok)
	assert.Equal(t, 2, view.PasswordResetCount)
}

func TestMemoryCache_MissAfterTTL(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)

	c.Set("user1", &models.GuardView{ID: "user1"})
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("user1")
	assert.False(t, ok)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(1 * time.Minute)

	c.Set("user1", &models.GuardView{ID: "user1"})
	c.Delete("user1")

	_, ok := c.Get("user1")
	assert.False(t, ok)
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := NewMemoryCache(1 * time.Minute)

	c.Set("user1", &models.GuardView{ID: "user1", PasswordResetCount: 1})

	view, _ := c.Get("user1")
	view.PasswordResetCount = 99

	again, _ := c.Get("user1")
	assert.Equal(t, 1, again.PasswordResetCount)
}
