package pddbtest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stats is a point-in-time view of the store for the admin surface.
type Stats struct {
	Bases       []string `json:"bases"`
	Opens       int      `json:"opens"`
	Releases    int      `json:"releases"`
	Outstanding int      `json:"outstanding"`
}

// Bases lists mounted bases, oldest first.
func (s *Store) Bases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.bases))
	for _, b := range s.bases {
		out = append(out, b.name)
	}
	return out
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Bases:       make([]string, 0, len(s.bases)),
		Opens:       s.opens,
		Releases:    s.releases,
		Outstanding: len(s.handles),
	}
	for _, b := range s.bases {
		st.Bases = append(st.Bases, b.name)
	}
	return st
}

// RegisterRoutes exposes store inspection and basis mount control.
func (s *Store) RegisterRoutes(r gin.IRoutes) {
	r.GET("/store", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Stats())
	})
	r.GET("/bases", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"bases": s.Bases()})
	})
	r.POST("/bases/:basis", func(c *gin.Context) {
		name := c.Param("basis")
		s.Mount(name)
		c.JSON(http.StatusOK, gin.H{"mounted": name, "bases": s.Bases()})
	})
	r.DELETE("/bases/:basis", func(c *gin.Context) {
		name := c.Param("basis")
		s.mu.Lock()
		known := s.find(name) != nil
		s.mu.Unlock()
		if !known {
			c.JSON(http.StatusNotFound, gin.H{"error": "basis not mounted"})
			return
		}
		s.Unmount(name)
		c.JSON(http.StatusOK, gin.H{"unmounted": name, "bases": s.Bases()})
	})
}
