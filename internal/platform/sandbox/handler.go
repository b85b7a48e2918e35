package sandbox

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aclis/ehrsynth/internal/domain/scenario"
)

// maxFiller caps the filler count a single preview request may ask for.
const maxFiller = 500

// Observer is notified of every corpus the handler generates.
type Observer interface {
	Observe(*SeedResult)
}

// Handler serves corpus previews over HTTP. It is stateless: every request
// builds a fresh corpus from its own seed.
type Handler struct {
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
	export   func(*Corpus, io.Writer, Format) error
}

// NewHandler creates a handler. observer may be nil.
func NewHandler(observer Observer, logger zerolog.Logger) *Handler {
	return &Handler{observer: observer, logger: logger, now: time.Now, export: (*Corpus).Export}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/scenarios", h.handleScenarios)
	g.GET("/corpus", h.handleCorpus)
}

type scenarioInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Encounters  int    `json:"encounters"`
}

func (h *Handler) handleScenarios(c echo.Context) error {
	out := make([]scenarioInfo, 0, len(scenario.Names()))
	for _, name := range scenario.Names() {
		t, err := scenario.Lookup(name)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, scenarioInfo{Name: t.Name, Description: t.Description, Encounters: len(t.Encounters)})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) handleCorpus(c echo.Context) error {
	cfg := DefaultSeedConfig()
	cfg.Now = h.now()

	if v := c.QueryParam("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "seed must be an integer")
		}
		cfg.Seed = seed
	}
	if v := c.QueryParam("filler"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxFiller {
			return echo.NewHTTPError(http.StatusBadRequest, "filler must be an integer in [0,500]")
		}
		cfg.Filler = n
	}
	if v, ok := c.QueryParams()["scenario"]; ok {
		cfg.Scenario = v[0]
	}
	format := FormatJSON
	if v := c.QueryParam("format"); v != "" {
		f, err := ParseFormat(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		format = f
	}

	corpus, result, err := NewSeeder(cfg, h.logger).Generate()
	switch {
	case errors.Is(err, scenario.ErrUnknownScenario):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Encode fully before committing a status.
	var buf bytes.Buffer
	if err := h.export(corpus, &buf, format); err != nil {
		h.logger.Error().Err(err).Int64("seed", result.Seed).Msg("corpus export failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "corpus export failed")
	}
	if h.observer != nil {
		h.observer.Observe(result)
	}

	c.Response().Header().Set("X-Seed", strconv.FormatInt(result.Seed, 10))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}
