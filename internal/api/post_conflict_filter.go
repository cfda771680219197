package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/depgraph-io/depgraph/internal/api/middleware"
	"github.com/depgraph-io/depgraph/internal/conflicts"
)

// handleConflictFilter returns the candidate pairs whose file overlap is excused by a
// Conflicts or Obsoletes declaration. Pairs are package hashes as decimal strings.
func (s *Server) handleConflictFilter(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var body ConflictFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.logger.Warn("Request body too large",
				slog.String("correlation_id", correlationID),
				slog.Int64("limit", maxBytesErr.Limit),
			)

			WriteErrorResponse(w, r, s.logger,
				RequestEntityTooLarge(fmt.Sprintf("Request body exceeds %d bytes", maxBytesErr.Limit)))

			return
		}

		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON in request body"))

		return
	}

	pairs, err := parsePairs(body.Pairs)
	if err != nil {
		s.metrics.observe(opConflictFilter, start, 0, err)
		s.writeQueryError(w, r, opConflictFilter, err)

		return
	}

	excused, err := s.filter.Excused(r.Context(), pairs)
	if err != nil {
		s.metrics.observe(opConflictFilter, start, 0, err)
		s.writeQueryError(w, r, opConflictFilter, err)

		return
	}

	s.metrics.observe(opConflictFilter, start, len(excused), nil)
	s.metrics.ExcusedPairs.Add(float64(len(excused)))

	out := make([]HashPair, 0, len(excused))
	for _, p := range excused {
		out = append(out, HashPair{A: strconv.FormatUint(p.A, 10), B: strconv.FormatUint(p.B, 10)})
	}

	s.writeJSON(w, r, http.StatusOK, ConflictFilterResponse{Length: len(out), Excused: out})
}

func parsePairs(in []HashPair) ([]conflicts.Pair, error) {
	pairs := make([]conflicts.Pair, 0, len(in))

	for i, p := range in {
		a, errA := strconv.ParseUint(p.A, 10, 64)
		b, errB := strconv.ParseUint(p.B, 10, 64)

		if errA != nil || errB != nil {
			return nil, fmt.Errorf("%w: pair %d: hashes must be unsigned 64-bit decimal strings",
				conflicts.ErrValidation, i)
		}

		pairs = append(pairs, conflicts.Pair{A: a, B: b})
	}

	return pairs, nil
}
