// Package ai wraps the Groq endpoints behind the two metered actions:
// proposal generation (chat completion) and voice transcription (Whisper).
//
// Groq speaks the OpenAI wire protocol, so GroqClient is a thin layer over
// go-openai pointed at the Groq base URL. Provider failures are reduced to
// an ErrorKind by Classify; the HTTP layer picks the user-facing message.
package ai
