package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/registry"
)

// Enroll runs the registry onboarding flow for a participant: subscribe,
// sign the returned challenge with the participant's own key, and answer it.
// On success the registry record is ACTIVE and counterparts can verify this
// participant's signatures.
func Enroll(ctx context.Context, registryURL string, sub *registry.Subscriber, signingKey crypto.PrivateKey) error {
	client := &http.Client{Timeout: 10 * time.Second}

	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding subscriber: %w", err)
	}
	resp, err := post(ctx, client, registryURL+"/subscribe", body)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry rejected subscription with status %d", resp.StatusCode)
	}

	challenge, err := protocol.DecodeMessage[registry.SubscribeResponse](resp.Body)
	if err != nil {
		return fmt.Errorf("decoding challenge: %w", err)
	}

	signature, err := crypto.Sign(signingKey, []byte(challenge.Challenge))
	if err != nil {
		return fmt.Errorf("signing challenge: %w", err)
	}
	answer, err := json.Marshal(&registry.ChallengeAnswer{
		SubscriberID: sub.SubscriberID,
		Signature:    base64.StdEncoding.EncodeToString(signature),
	})
	if err != nil {
		return fmt.Errorf("encoding answer: %w", err)
	}

	resp2, err := post(ctx, client, registryURL+"/on_subscribe", answer)
	if err != nil {
		return fmt.Errorf("answering challenge: %w", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		return fmt.Errorf("registry rejected challenge answer with status %d", resp2.StatusCode)
	}
	return nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}
