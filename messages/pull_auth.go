package messages

import (
	"crypto"
	"encoding/json"
)

// PullAuthorizationRequest is the "pull" variant of the payer authorization:
// the signed AuthorizationData is itself hidden inside a hybrid envelope
// addressed to the payment provider, so only the provider can read it.
type PullAuthorizationRequest struct {
	MessageType string          `json:"messageType"`
	AuthURL     string          `json:"authUrl"`
	AuthData    pullAuthPayload `json:"authData"`
}

type pullAuthPayload struct {
	EncryptedData *EncryptedData `json:"encryptedData"`
}

// EncodePullAuthorizationRequest encrypts a signed AuthorizationData toward
// the provider's published key.
func EncodePullAuthorizationRequest(authorizationData json.RawMessage, authURL string,
	providerKey crypto.PublicKey, keyAlgorithm string) (json.RawMessage, error) {

	encrypted, err := Encrypt(authorizationData, providerKey, keyAlgorithm)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(PullAuthorizationRequest{
		MessageType: MsgPayerPullAuthReq,
		AuthURL:     authURL,
		AuthData:    pullAuthPayload{EncryptedData: encrypted},
	})
	if err != nil {
		return nil, Errf(MalformedMessage, "encode pull authorization: %v", err)
	}
	return raw, nil
}

// ParsePullAuthorizationRequest decodes the pull wrapper without decrypting.
func ParsePullAuthorizationRequest(raw json.RawMessage) (*PullAuthorizationRequest, error) {
	var wire PullAuthorizationRequest
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgPayerPullAuthReq {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if wire.AuthData.EncryptedData == nil || wire.AuthData.EncryptedData.EncryptedKey == nil {
		return nil, Errf(MalformedMessage, "missing encrypted authorization data")
	}
	return &wire, nil
}

// Decrypt selects the holder for the envelope's declared algorithm and
// recovers the embedded signed AuthorizationData.
func (p *PullAuthorizationRequest) Decrypt(holders []DecryptionKeyHolder) (*AuthorizationData, error) {
	holder, err := SelectDecryptionKey(holders, p.AuthData.EncryptedData.EncryptedKey.Algorithm)
	if err != nil {
		return nil, err
	}
	plaintext, err := p.AuthData.EncryptedData.Decrypt(holder)
	if err != nil {
		return nil, err
	}
	return ParseAuthorizationData(plaintext)
}
