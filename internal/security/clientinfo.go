// internal/security/clientinfo.go
package security

import (
	"strings"

	"github.com/vendora/backend/internal/models"
)

// BuildClientInfo snapshots the request fingerprint recorded on tokens and
// audit entries.
func BuildClientInfo(ip, userAgent string) models.ClientInfo {
	return models.ClientInfo{
		IP:        ip,
		UserAgent: userAgent,
		Platform:  DerivePlatform(userAgent),
		Browser:   DeriveBrowser(userAgent),
	}
}

func DerivePlatform(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Windows"):
		return "Windows"
	case strings.Contains(userAgent, "Mac"):
		return "macOS"
	case strings.Contains(userAgent, "Android"):
		return "Android"
	case strings.Contains(userAgent, "iOS"), strings.Contains(userAgent, "iPhone"):
		return "iOS"
	case strings.Contains(userAgent, "Linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

func DeriveBrowser(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Edge"):
		return "Edge"
	case strings.Contains(userAgent, "Opera"):
		return "Opera"
	case strings.Contains(userAgent, "Chrome"):
		return "Chrome"
	case strings.Contains(userAgent, "Firefox"):
		return "Firefox"
	case strings.Contains(userAgent, "Safari"):
		return "Safari"
	default:
		return "Unknown"
	}
}
