package chain

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/io/file"
)

// AuthorizationMethod identifies the scheme used to authorize requests to an
// RPC provider.
type AuthorizationMethod uint8

const (
	// None means no authorization header is attached to requests.
	None AuthorizationMethod = iota
	// Basic attaches a base64 encoded user:password pair.
	Basic
	// Bearer attaches an opaque token.
	Bearer
)

// Method returns the authorization method parsed from a string.
func Method(auth string) AuthorizationMethod {
	if strings.HasPrefix(strings.ToLower(auth), "basic") {
		return Basic
	}
	if strings.HasPrefix(strings.ToLower(auth), "bearer") {
		return Bearer
	}
	return None
}

// AuthorizationData holds the method and the encoded value of the
// authorization header for an endpoint.
type AuthorizationData struct {
	Method AuthorizationMethod
	Value  string
}

// ToHeaderValue retrieves the value of the authorization header from
// AuthorizationData.
func (d *AuthorizationData) ToHeaderValue() (string, error) {
	switch d.Method {
	case Basic:
		return "Basic " + d.Value, nil
	case Bearer:
		return "Bearer " + d.Value, nil
	case None:
		return "", nil
	}
	return "", errors.Errorf("could not create HTTP header for unknown authorization method %d", d.Method)
}

// Endpoint is an RPC provider URL together with its authorization data.
type Endpoint struct {
	Url  string
	Auth AuthorizationData
}

// HttpEndpoint extracts an Endpoint from the provider parameter. The string
// can contain one comma separating the URL from an authorization header
// value, "url,Basic user:password" or "url,Bearer token".
func HttpEndpoint(provider string) Endpoint {
	endpoint := Endpoint{
		Url: "",
		Auth: AuthorizationData{
			Method: None,
			Value:  "",
		}}

	authValues := strings.Split(provider, ",")
	if len(authValues) > 2 {
		log.Errorf(
			"RPC endpoint string can contain one comma for specifying the authorization header to access the provider."+
				" String contains too many commas: %d. Skipping authorization.", len(authValues)-1)
		endpoint.Url = authValues[0]
	} else if len(authValues) == 2 {
		endpoint.Url = authValues[0]
		switch Method(authValues[1]) {
		case Basic:
			basicAuthValues := strings.Split(authValues[1], " ")
			if len(basicAuthValues) != 2 {
				log.Errorf("Basic authentication has incorrect format. Skipping authorization.")
			} else {
				endpoint.Auth.Method = Basic
				endpoint.Auth.Value = base64.StdEncoding.EncodeToString([]byte(basicAuthValues[1]))
			}
		case Bearer:
			bearerValues := strings.Split(authValues[1], " ")
			if len(bearerValues) != 2 {
				log.Errorf("Bearer authentication has incorrect format. Skipping authorization.")
			} else {
				endpoint.Auth.Method = Bearer
				endpoint.Auth.Value = bearerValues[1]
			}
		case None:
			log.Errorf("Authorization has incorrect format or authorization type is not supported.")
		}
	} else if len(authValues) == 1 {
		endpoint.Url = authValues[0]
	}
	return endpoint
}

// LoadJWTSecret reads a hex encoded secret from path for HS256 signed RPC
// authentication tokens.
func LoadJWTSecret(path string) ([]byte, error) {
	enc, err := file.ReadFileAsBytes(path)
	if err != nil {
		return nil, err
	}
	strData := strings.TrimSpace(string(enc))
	if len(strData) == 0 {
		return nil, errors.Errorf("provided JWT secret in file %s cannot be empty", path)
	}
	secret, err := hex.DecodeString(strings.TrimPrefix(strData, "0x"))
	if err != nil {
		return nil, err
	}
	if len(secret) < 32 {
		return nil, errors.New("provided JWT secret should have at least 32 bytes")
	}
	return secret, nil
}

// jwtToken mints a fresh HS256 token from the secret. Providers check the
// issued-at claim against their own clock, so tokens are minted per request
// rather than cached.
func jwtToken(secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(time.Now()),
	})
	return token.SignedString(secret)
}

// redactedUrl hides credentials embedded in an endpoint URL so the endpoint
// can be logged.
func redactedUrl(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.User == nil {
		return endpoint
	}
	u.User = url.User("***")
	return u.String()
}
