package models

import (
	"time"

	"github.com/google/uuid"
)

// Status representa o estado de revisão de uma submissão.
// 'pending' é o estado inicial; os outros dois são terminais.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid verifica se o status é um dos três valores conhecidos
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Terminal indica se o status não admite mais transições
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// DocumentSlot identifica qual das duas fotos do documento
type DocumentSlot string

const (
	SlotFotoFrente DocumentSlot = "fotoFrente"
	SlotFotoVerso  DocumentSlot = "fotoVerso"
)

// Valid verifica se o slot é conhecido
func (s DocumentSlot) Valid() bool {
	return s == SlotFotoFrente || s == SlotFotoVerso
}

// DocumentImage é o binário de uma foto mantido apenas em memória.
// Nunca é serializado junto com a sessão.
type DocumentImage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Draft são os dados do formulário em andamento.
// As fotos ficam fora do JSON de propósito: não sobrevivem a um reload.
type Draft struct {
	Nome          string `json:"nome"`
	Idade         string `json:"idade"` // como digitado; normalizado apenas no envio
	Email         string `json:"email"`
	Whatsapp      string `json:"whatsapp"`
	TermosAceitos bool   `json:"termosAceitos"`

	FotoFrente *DocumentImage `json:"-"`
	FotoVerso  *DocumentImage `json:"-"`
}

// Submission é o registro durável criado no envio bem-sucedido
type Submission struct {
	ID            uuid.UUID `json:"id"`
	Nome          string    `json:"nome"`
	Idade         int       `json:"idade"`
	Email         string    `json:"email"`
	Whatsapp      string    `json:"whatsapp"` // apenas dígitos
	FotoFrenteURL string    `json:"fotoFrenteUrl"`
	FotoVersoURL  string    `json:"fotoVersoUrl"`
	UserID        uuid.UUID `json:"userId"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"` // definido uma vez na criação
}

// Session é o estado local de um dispositivo, estável entre reloads
type Session struct {
	UserID      uuid.UUID `json:"userId"`
	Draft       Draft     `json:"draft"`
	Submitted   bool      `json:"submitted"` // irreversível depois de um envio
	AdminLogged bool      `json:"adminLogged"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
