// Package intent classifies an incoming query as a greeting, casual talk or
// a technical question using fixed word lists. It performs no I/O.
package intent

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ziadkadry99/lanne/internal/logging"
)

// Intent is the coarse category of a query.
type Intent string

const (
	Greeting  Intent = "GREETING"
	Casual    Intent = "CASUAL"
	Technical Intent = "TECHNICAL"
)

// Trivial reports whether the intent is answered without consulting any
// information source.
func (i Intent) Trivial() bool {
	return i == Greeting || i == Casual
}

func (i Intent) String() string { return string(i) }

const (
	greetingMaxWords      = 4
	defaultCasualMaxWords = 3
)

var greetings = []string{
	"oi", "ola", "bom dia", "boa tarde", "boa noite", "e ai", "eai",
	"hey", "opa", "fala", "salve", "hello", "hi",
}

var casualPatterns = []string{
	"obrigado", "obrigada", "valeu", "brigado", "vlw", "tchau", "ate mais",
	"falou", "tmj", "quem e voce", "o que voce faz", "o que voce sabe",
}

var technicalHints = []string{
	"memoria", "disco", "cpu", "rede", "processo", "servico", "log",
	"usuario", "uptime", "comando", "instalar", "configurar", "executar",
	"rodar", "travando", "lento", "erro", "falha", "problema", "nao funciona",
	"parou", "quebrou", "crashou", "tela preta", "boot", "iniciar",
	"desligar", "reiniciar", "atualizar", "computador", "sistema", "linux",
	"debian", "ubuntu", "terminal", "interface", "swap", "particao", "porta",
	"conexao", "pacote", "apt", "dpkg", "ssh", "firewall", "kernel", "sudo",
}

// Short hints that would otherwise match inside ordinary words
// ("ip" in "equipe", "ram" in "programa").
var wholeWordHints = map[string]bool{"ip": true, "ram": true}

// Classifier applies the greeting, casual and technical rules in order.
type Classifier struct {
	casualMaxWords int
	logger         *zap.Logger
}

// NewClassifier creates a Classifier. Queries with no matching rule and at
// most casualMaxWords words are treated as casual; a value <= 0 selects 3.
func NewClassifier(casualMaxWords int, logger *zap.Logger) *Classifier {
	if casualMaxWords <= 0 {
		casualMaxWords = defaultCasualMaxWords
	}
	return &Classifier{
		casualMaxWords: casualMaxWords,
		logger:         logging.OrNop(logger).Named("intent"),
	}
}

// Classify returns the intent of text. It never fails: an internal error
// yields Technical so the query still reaches the information sources.
func (c *Classifier) Classify(text string) (result Intent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classifier panic, defaulting to technical", zap.Any("panic", r))
			result = Technical
		}
	}()

	result = c.classify(Normalize(text))
	c.logger.Debug("classified", zap.String("query", truncate(text, 60)), zap.Stringer("intent", result))
	return result
}

func (c *Classifier) classify(q string) Intent {
	words := strings.Fields(q)

	if len(words) <= greetingMaxWords {
		for _, g := range greetings {
			if q == g || strings.HasPrefix(q, g+" ") || strings.HasPrefix(q, g+",") {
				return Greeting
			}
		}
	}

	for _, p := range casualPatterns {
		if strings.Contains(q, p) {
			return Casual
		}
	}

	if hasTechnicalHint(q) {
		return Technical
	}

	if len(words) <= c.casualMaxWords {
		return Casual
	}
	return Technical
}

func hasTechnicalHint(q string) bool {
	for _, h := range technicalHints {
		if strings.Contains(q, h) {
			return true
		}
	}
	for _, tok := range strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if wholeWordHints[tok] {
			return true
		}
	}
	return false
}

// Normalize lower-cases, trims and strips diacritics, so "Memória" and
// "memoria" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.TrimSpace(strings.ToLower(folded))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
