package form

import (
	"regexp"
	"strconv"
	"strings"

	"verifica18-backend/internal/models"
)

// Step é uma etapa do formulário sujeita a validação
type Step int

const (
	StepBasicInfo Step = iota
	StepDocuments
	StepTerms
)

// ErrorMap mapeia nome do campo para a mensagem de erro.
// Vazio significa etapa válida; qualquer entrada bloqueia o avanço.
type ErrorMap map[string]string

const (
	IdadeMinima = 18
	IdadeMaxima = 50

	whatsappMinDigits = 8
	whatsappMaxDigits = 15
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// NormalizeWhatsapp remove tudo que não é dígito
func NormalizeWhatsapp(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// NormalizeEmail deixa o e-mail em minúsculas e sem espaços nas pontas
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseIdade converte a idade digitada; erro para valores não numéricos
func ParseIdade(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// Validate verifica uma etapa do rascunho. Pura e determinística:
// mesmo rascunho, mesmo resultado, nenhum efeito colateral.
func Validate(step Step, d models.Draft) ErrorMap {
	errs := ErrorMap{}

	switch step {
	case StepBasicInfo:
		if strings.TrimSpace(d.Nome) == "" {
			errs["nome"] = "Nome é obrigatório"
		}

		// Não numérico e fora da faixa produzem o mesmo erro
		idade, err := ParseIdade(d.Idade)
		if err != nil || idade < IdadeMinima || idade > IdadeMaxima {
			errs["idade"] = "Idade deve ser entre 18 e 50"
		}

		if !emailPattern.MatchString(strings.TrimSpace(d.Email)) {
			errs["email"] = "E-mail inválido"
		}

		digits := NormalizeWhatsapp(d.Whatsapp)
		if len(digits) < whatsappMinDigits || len(digits) > whatsappMaxDigits {
			errs["whatsapp"] = "Número de WhatsApp inválido (8 a 15 dígitos)"
		}

	case StepDocuments:
		// Uma foto já aceita conta como preenchida mesmo antes do upload
		if d.FotoFrente == nil {
			errs["fotoFrente"] = "Foto da frente do documento é obrigatória"
		}
		if d.FotoVerso == nil {
			errs["fotoVerso"] = "Foto do verso do documento é obrigatória"
		}

	case StepTerms:
		if !d.TermosAceitos {
			errs["termosAceitos"] = "Você deve aceitar os termos"
		}
	}

	return errs
}
