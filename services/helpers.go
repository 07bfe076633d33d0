package services

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"bounty-quest/apperrors"

	"github.com/ethereum/go-ethereum/common"
)

var postIDPattern = regexp.MustCompile(`/status(?:es)?/(\d+)`)

// ParsePostID extracts the numeric post id from a post URL such as
// https://x.com/alice/status/1234567890?s=20.
func ParsePostID(postURL string) (string, error) {
	postURL = strings.TrimSpace(postURL)
	if postURL == "" {
		return "", apperrors.Validation("post url is required")
	}
	u, err := url.Parse(postURL)
	if err != nil {
		return "", apperrors.Validation("post url %q is not a valid url", postURL)
	}
	m := postIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", apperrors.Validation("post url %q does not reference a post", postURL)
	}
	return m[1], nil
}

// NormalizeWallet validates a hex wallet address and returns its checksummed form.
func NormalizeWallet(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return "", apperrors.Validation("wallet address is required")
	}
	if !common.IsHexAddress(wallet) {
		return "", apperrors.Validation("wallet address %q is malformed", wallet)
	}
	return common.HexToAddress(wallet).Hex(), nil
}

// mentionsWallet matches the address in text case-insensitively, with or without the 0x prefix.
func mentionsWallet(text, wallet string) bool {
	needle := strings.TrimPrefix(strings.ToLower(wallet), "0x")
	return needle != "" && strings.Contains(strings.ToLower(text), needle)
}

// detached keeps ctx values but drops its cancellation, for cleanup that must run after a caller gave up.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// outcomeLabel is the metric label for an operation result.
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperrors.KindOf(err))
}
