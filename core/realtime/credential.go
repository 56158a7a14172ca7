package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNoCredential is returned when the credential endpoint responds without a
// usable client secret. The credential is single-use and must be fetched
// fresh for every connection attempt.
var ErrNoCredential = errors.New("no ephemeral credential provided")

// CredentialFunc produces a short-lived credential authorizing one realtime
// session.
type CredentialFunc func(ctx context.Context) (string, error)

// EphemeralCredential requests a fresh single-use credential from the session
// endpoint collaborator.
func EphemeralCredential(endpoint, apiKey, model, voice string) CredentialFunc {
	return func(ctx context.Context) (string, error) {
		ctx, span := tracer.Start(ctx, "fetch ephemeral credential")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", model))

		reqBody, err := json.Marshal(struct {
			Model string `json:"model"`
			Voice string `json:"voice,omitempty"`
		}{Model: model, Voice: voice})
		if err != nil {
			return "", fmt.Errorf("error marshalling JSON: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(reqBody))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("error reading response body: %w", err)
		}

		var parsed struct {
			ClientSecret struct {
				Value string `json:"value"`
			} `json:"client_secret"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("error unmarshalling response: %w", err)
		}

		if parsed.ClientSecret.Value == "" {
			span.RecordError(ErrNoCredential)
			span.SetStatus(codes.Error, ErrNoCredential.Error())
			return "", ErrNoCredential
		}

		return parsed.ClientSecret.Value, nil
	}
}
