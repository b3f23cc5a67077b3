package xref

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"Agropecuária São João Ltda", "AGROPECUARIA SAO JOAO"},
		{"AGROPECUARIA SAO JOAO LTDA.", "AGROPECUARIA SAO JOAO"},
		{"Silva & Filhos Comércio de Grãos S/A", "SILVA E FILHOS COMERCIO DE GRAOS"},
		{"Silva e Filhos Comercio de Graos S.A.", "SILVA E FILHOS COMERCIO DE GRAOS"},
		{"Balanças Ribeiro EIRELI - ME", "BALANCAS RIBEIRO"},
		{"Cooperativa Agro-Industrial", "COOPERATIVA AGRO INDUSTRIAL"},
		{"  José   Antônio  ", "JOSE ANTONIO"},
		{"Pereira & Cia", "PEREIRA"},
		{"LTDA", "LTDA"},
		{"Maria Sá", "MARIA SA"},
		{"José Me", "JOSE ME"},
		{"Maria Sá Ltda", "MARIA SA"},
		{"Granja Sá Comercio S/A", "GRANJA SA COMERCIO"},
		{"Ribeiro Balanças ME", "RIBEIRO BALANCAS"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), tt.in)
	}
}

func TestNormalizeCity(t *testing.T) {
	assert.Equal(t, "SAO JOSE DO RIO PRETO", NormalizeCity(" São José do Rio-Preto "))
	assert.Equal(t, "RIBEIRAO PRETO", NormalizeCity("Ribeirão Preto"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "contato@fazenda.com.br", NormalizeEmail("  Contato@Fazenda.com.BR "))
	assert.Equal(t, "", NormalizeEmail("not-an-email"))
}

func TestNormalizeDocument(t *testing.T) {
	assert.Equal(t, "12345678900", NormalizeDocument("123.456.789-00"))
	assert.Equal(t, NormalizeDocument("123.456.789-00"), NormalizeDocument("12345678900"))
	assert.Equal(t, "11222333000181", NormalizeDocument("11.222.333/0001-81"))
	assert.Equal(t, "", NormalizeDocument("1234"))
}
