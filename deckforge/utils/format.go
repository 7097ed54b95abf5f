package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deckforge/deckforge/deckforge/database/models"
)

// RarityColors are the embed accent colors per rarity.
var RarityColors = map[models.Rarity]int{
	models.RarityCommon:      0x9CA3AF,
	models.RarityUncommon:    0x10B981,
	models.RarityExceptional: 0x3B82F6,
	models.RarityRare:        0x8B5CF6,
	models.RarityEpic:        0xA855F7,
	models.RarityLegendary:   0xF59E0B,
	models.RarityMythic:      0xEF4444,
}

const defaultEmbedColor = 0x667EEA

// RarityColor returns the embed color for a rarity, with a neutral fallback.
func RarityColor(rarity models.Rarity) int {
	if color, ok := RarityColors[rarity]; ok {
		return color
	}
	return defaultEmbedColor
}

// FormatNumber renders n with thousands separators.
func FormatNumber(n int64) string {
	str := strconv.FormatInt(n, 10)
	if n < 0 {
		str = str[1:]
	}

	var result []byte
	for i := len(str) - 1; i >= 0; i-- {
		if (len(str)-i-1)%3 == 0 && i != len(str)-1 {
			result = append([]byte{','}, result...)
		}
		result = append([]byte{str[i]}, result...)
	}

	if n < 0 {
		return "-" + string(result)
	}
	return string(result)
}

// FormatMergeLevel renders a merge level as stars up to five, "+N" beyond,
// and nothing at level zero.
func FormatMergeLevel(level int) string {
	switch {
	case level <= 0:
		return ""
	case level <= 5:
		return strings.Repeat("★", level)
	default:
		return fmt.Sprintf("+%d", level)
	}
}

// FormatDuration renders a duration as the largest two non-zero units,
// e.g. "2h 15m" or "45m 10s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// FormatCredits renders an amount with the credit suffix.
func FormatCredits(n int64) string {
	return FormatNumber(n) + " cr"
}
