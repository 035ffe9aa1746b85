package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(3, zaptest.NewLogger(t))

	tests := []struct {
		text string
		want Intent
	}{
		{"oi", Greeting},
		{"Olá", Greeting},
		{"  BOM DIA  ", Greeting},
		{"oi, tudo bem?", Greeting},
		{"e ai lanne", Greeting},
		{"hello there", Greeting},
		{"oi preciso configurar o firewall do meu servidor", Technical},
		{"oigente", Casual},
		{"muito obrigado!", Casual},
		{"Quem é você?", Casual},
		{"valeu pela ajuda com o apt", Casual},
		{"como configurar firewall no debian", Technical},
		{"qual meu IP", Technical},
		{"uso de memória alto", Technical},
		{"o servidor parou de responder", Technical},
		{"legal", Casual},
		{"que dia lindo hoje", Technical},
		{"a equipe chegou", Casual},
		{"", Casual},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassifyIPWholeWord(t *testing.T) {
	c := NewClassifier(0, nil)
	assert.Equal(t, Technical, c.Classify("mostra o ip"))
	assert.Equal(t, Technical, c.Classify("ip?"))
	// "equipe" contains "ip" but is not a technical hint.
	assert.Equal(t, Casual, c.Classify("minha equipe"))
}

func TestClassifyCasualMaxWords(t *testing.T) {
	c := NewClassifier(5, nil)
	assert.Equal(t, Casual, c.Classify("que dia lindo hoje"))
	assert.Equal(t, Technical, c.Classify("que dia lindo hoje aqui fora"))
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier(3, nil)
	for i := 0; i < 100; i++ {
		assert.Equal(t, Technical, c.Classify("como configurar firewall no debian"))
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "memoria", Normalize(" Memória "))
	assert.Equal(t, "particao servico conexao", Normalize("PARTIÇÃO serviço conexão"))
}

func TestTrivial(t *testing.T) {
	assert.True(t, Greeting.Trivial())
	assert.True(t, Casual.Trivial())
	assert.False(t, Technical.Trivial())
}
