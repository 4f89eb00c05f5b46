package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CacheConfig represents cache control configuration
type CacheConfig struct {
	MaxAge               int
	Private              bool
	NoStore              bool
	StaleWhileRevalidate int
	Vary                 []string
}

// PublicCatalogCacheConfig lets browsers and CDNs hold catalog reads briefly.
func PublicCatalogCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:               300,
		StaleWhileRevalidate: 60,
		Vary:                 []string{"Accept", "Origin"},
	}
}

// NoStoreCacheConfig is used for anything carrying personal data or live availability.
func NoStoreCacheConfig() CacheConfig {
	return CacheConfig{NoStore: true, Private: true}
}

// Cache adds cache control headers to responses
func Cache(config CacheConfig) gin.HandlerFunc {
	header := cacheControl(config)
	vary := strings.Join(config.Vary, ", ")

	return func(c *gin.Context) {
		if c.Request.Method != "GET" && c.Request.Method != "HEAD" {
			c.Header("Cache-Control", "no-store")
			c.Next()
			return
		}

		c.Header("Cache-Control", header)
		if vary != "" {
			c.Header("Vary", vary)
		}
		c.Next()
	}
}

func cacheControl(config CacheConfig) string {
	if config.NoStore {
		if config.Private {
			return "private, no-store"
		}
		return "no-store"
	}

	directives := make([]string, 0, 3)
	if config.Private {
		directives = append(directives, "private")
	} else {
		directives = append(directives, "public")
	}
	if config.MaxAge > 0 {
		directives = append(directives, "max-age="+strconv.Itoa(config.MaxAge))
	}
	if config.StaleWhileRevalidate > 0 {
		directives = append(directives, "stale-while-revalidate="+strconv.Itoa(config.StaleWhileRevalidate))
	}
	return strings.Join(directives, ", ")
}
