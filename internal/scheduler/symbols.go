package scheduler

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DefaultSymbols is used when neither a list nor a symbols file yields anything.
var DefaultSymbols = []string{
	"BTC-USD", "ETH-USD", "BNB-USD", "SOL-USD", "XRP-USD",
	"ADA-USD", "DOGE-USD", "TRX-USD", "DOT-USD", "MATIC-USD",
}

// ResolveSymbols picks the batch symbols: the explicit list, else the symbols
// file, else DefaultSymbols. Every fallback is logged.
func ResolveSymbols(list []string, file string, log zerolog.Logger) []string {
	if syms := normalizeSymbols(list); len(syms) > 0 {
		return syms
	}
	if file == "" {
		log.Info().Int("count", len(DefaultSymbols)).Msg("no symbol list or file configured, using default symbols")
		return slices.Clone(DefaultSymbols)
	}
	log.Info().Str("file", file).Msg("no symbol list configured, reading symbols file")
	syms, err := ReadSymbolsFile(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("file", file).Msg("symbols file not found, using default symbols")
	case err != nil:
		log.Warn().Err(err).Str("file", file).Msg("read symbols file, using default symbols")
	case len(syms) == 0:
		log.Warn().Str("file", file).Msg("symbols file is empty, using default symbols")
	default:
		return syms
	}
	return slices.Clone(DefaultSymbols)
}

// ReadSymbolsFile reads one or more comma-separated symbols per line.
// Blank lines and lines starting with '#' are ignored.
func ReadSymbolsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, strings.Split(line, ",")...)
	}
	return normalizeSymbols(raw), nil
}

func normalizeSymbols(in []string) []string {
	trimmed := lo.Map(in, func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Uniq(lo.Compact(trimmed))
}
