package translation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/loqalabs/loqa-translate/internal/protocol"
)

const missingParamsMessage = "Missing required parameters: text, source_lang, or target_lang"

// Handler serves POST /translate.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(s.serveTranslate)
}

func (s *Service) serveTranslate(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in translate handler", slog.Any("panic", rec))
			writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
				Error:             fmt.Sprint(rec),
				TranslationSource: SourceErrorHandler.String(),
			})
		}
	}()

	var req protocol.TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid translate request body", slogError(err))
		writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
			Error:             err.Error(),
			TranslationSource: SourceErrorHandler.String(),
		})
		return
	}
	if req.Text == "" || req.SourceLang == "" || req.TargetLang == "" {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: missingParamsMessage})
		return
	}

	res := s.Translate(r.Context(), Request{
		Text:       req.Text,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
	})
	writeJSON(w, http.StatusOK, protocol.TranslateResponse{
		TranslatedText:    res.TranslatedText,
		SourceLang:        req.SourceLang,
		TargetLang:        req.TargetLang,
		TranslationSource: res.Source.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
