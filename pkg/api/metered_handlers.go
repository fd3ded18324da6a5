package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/voicequote/meterd/pkg/ai"
	"github.com/voicequote/meterd/pkg/httputil"
)

// MinAudioBytes is the smallest upload treated as a real recording
const MinAudioBytes = 1000

const maxAudioMemory = 32 << 20

// generateRequest is the body of POST /api/generate-quote. totalPrice may be
// sent as a string or a number.
type generateRequest struct {
	TranscribedText string    `json:"transcribedText"`
	ClientName      string    `json:"clientName"`
	ClientEmail     string    `json:"clientEmail"`
	TotalPrice      priceText `json:"totalPrice"`
}

type priceText string

func (p *priceText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = priceText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = priceText(n.String())
	return nil
}

type generateResponse struct {
	ProposalText string `json:"proposalText"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// generateQuote handles POST /api/generate-quote
func (s *Server) generateQuote(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := httputil.RequireNonEmpty(
		"transcribedText", req.TranscribedText,
		"clientName", req.ClientName,
		"clientEmail", req.ClientEmail,
		"totalPrice", string(req.TotalPrice),
	); err != nil {
		httputil.WriteAppError(w, r, "generate", err)
		return
	}
	if s.deps.Generator == nil {
		httputil.WriteAppError(w, r, "generate", httputil.Misconfigured("Server configuration error. Please contact support."))
		return
	}

	text, err := s.deps.Generator.GenerateProposal(r.Context(), ai.ProposalInput{
		TranscribedText: req.TranscribedText,
		ClientName:      strings.TrimSpace(req.ClientName),
		ClientEmail:     strings.TrimSpace(req.ClientEmail),
		TotalPrice:      strings.TrimSpace(string(req.TotalPrice)),
	})
	if err != nil {
		httputil.WriteAppError(w, r, "generate", generateError(err))
		return
	}

	httputil.WriteSuccess(w, generateResponse{ProposalText: text})
}

func generateError(err error) error {
	switch ai.Classify(err) {
	case ai.KindNotConfigured:
		return &httputil.Error{Kind: httputil.KindConfiguration, Message: "Server configuration error. Please contact support.", Err: err}
	case ai.KindAuth:
		return &httputil.Error{Kind: httputil.KindAuth, Message: "Invalid API key. Please check your GROQ_API_KEY configuration.", Err: err}
	case ai.KindRateLimited:
		return &httputil.Error{Kind: httputil.KindRateLimit, Message: "The AI service is temporarily rate-limited. Please try again in a moment.", Err: err}
	case ai.KindModelUnavailable:
		return httputil.Unavailable("AI model not available. Please try again later.", err)
	default:
		return httputil.Upstream("Failed to generate proposal. Please try again.", err)
	}
}

// transcribe handles POST /api/transcribe with a multipart "audio" field
func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcriber == nil {
		httputil.WriteAppError(w, r, "transcribe", httputil.Misconfigured("Server configuration error. GROQ_API_KEY is not set."))
		return
	}

	if err := r.ParseMultipartForm(maxAudioMemory); err != nil {
		httputil.WriteAppError(w, r, "transcribe", httputil.Validation("No audio file received."))
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		httputil.WriteAppError(w, r, "transcribe", httputil.Validation("No audio file received."))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteAppError(w, r, "transcribe", httputil.Validation("No audio file received."))
		return
	}
	if len(audio) < MinAudioBytes {
		httputil.WriteAppError(w, r, "transcribe", httputil.Validation("Recording too short. Please hold the mic and speak for at least 2 seconds."))
		return
	}

	filename := ai.AudioFilename(header.Header.Get("Content-Type"))
	text, err := s.deps.Transcriber.Transcribe(r.Context(), filename, bytes.NewReader(audio))
	if err != nil {
		httputil.WriteAppError(w, r, "transcribe", transcribeError(err))
		return
	}

	httputil.WriteSuccess(w, transcribeResponse{Text: text})
}

func transcribeError(err error) error {
	switch ai.Classify(err) {
	case ai.KindNotConfigured:
		return &httputil.Error{Kind: httputil.KindConfiguration, Message: "Server configuration error. GROQ_API_KEY is not set.", Err: err}
	case ai.KindConnection:
		return httputil.Unavailable("Could not reach transcription service. Please check your connection and try again.", err)
	case ai.KindAuth:
		return &httputil.Error{Kind: httputil.KindAuth, Message: "Invalid API key.", Err: err}
	case ai.KindRateLimited:
		return &httputil.Error{Kind: httputil.KindRateLimit, Message: "Rate limited. Please wait a moment and try again.", Err: err}
	case ai.KindRejectedInput:
		return &httputil.Error{Kind: httputil.KindValidation, Message: "Could not process audio. Please record at least 2 seconds of speech and try again.", Err: err}
	case ai.KindUnsupportedFormat:
		return &httputil.Error{Kind: httputil.KindValidation, Message: "Audio format not supported. Please try recording again.", Err: err}
	}
	return httputil.Upstream("Transcription failed. Please try again.", err)
}
