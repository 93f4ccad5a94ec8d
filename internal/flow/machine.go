package flow

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"verifica18-backend/internal/auth"
	"verifica18-backend/internal/form"
	"verifica18-backend/internal/gateway"
	"verifica18-backend/internal/models"
	"verifica18-backend/internal/session"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State é o estado do fluxo de verificação. Um enum fechado: não existe
// "etapa menos um" nem etapa guardada como string solta.
type State int

const (
	StateBasicInfo State = iota
	StateDocuments
	StateTerms
	StateSubmitting
	StateWaiting
	StateResult
	StateAdminLogin
	StateAdminPanel
)

var stateNames = map[State]string{
	StateBasicInfo:  "basicInfo",
	StateDocuments:  "documents",
	StateTerms:      "terms",
	StateSubmitting: "submitting",
	StateWaiting:    "waiting",
	StateResult:     "result",
	StateAdminLogin: "adminLogin",
	StateAdminPanel: "adminPanel",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText serializa o estado pelo nome
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrSubmitInFlight indica um segundo submit enquanto o primeiro não
	// terminou. Proteção contra clique duplo, não uma fila.
	ErrSubmitInFlight = errors.New("envio já em andamento")

	// ErrInvalidTransition indica uma operação que o estado atual não aceita
	ErrInvalidTransition = errors.New("operação inválida para o estado atual")

	// ErrAlreadySubmitted indica tentativa de voltar ao formulário depois
	// de um envio bem-sucedido
	ErrAlreadySubmitted = errors.New("verificação já enviada")
)

const defaultSubmitTimeout = 60 * time.Second

// Config são as dependências injetadas em cada máquina
type Config struct {
	Gateway       gateway.Gateway
	Sessions      session.Store
	Verifier      *auth.Verifier
	SubmitTimeout time.Duration
}

// Snapshot é a visão serializável do fluxo em um instante
type Snapshot struct {
	State         State         `json:"state"`
	Draft         models.Draft  `json:"draft"`
	HasFotoFrente bool          `json:"hasFotoFrente"`
	HasFotoVerso  bool          `json:"hasFotoVerso"`
	FieldErrors   form.ErrorMap `json:"fieldErrors"`
	Result        models.Status `json:"result,omitempty"`
	Submitted     bool          `json:"submitted"`
}

// Machine é a máquina de estados de um dispositivo: dona da etapa atual,
// do rascunho, do ciclo de envio e da assinatura de resultado.
type Machine struct {
	mu sync.Mutex

	userID      uuid.UUID
	state       State
	draft       models.Draft
	fieldErrors form.ErrorMap
	result      models.Status
	submitted   bool
	adminLogged bool

	gw            gateway.Gateway
	sessions      session.Store
	verifier      *auth.Verifier
	submitTimeout time.Duration

	// Assinatura do estado Waiting: aberta na entrada, fechada exatamente
	// uma vez em qualquer saída
	unsubscribe gateway.Unsubscribe

	watchers    map[int]chan Snapshot
	nextWatcher int
}

// NewMachine restaura uma máquina a partir da sessão persistida.
// Uma sessão com submitted=true nunca volta para o formulário: cai
// direto em Waiting com o listener ativo.
func NewMachine(cfg Config, sess *models.Session) *Machine {
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}

	m := &Machine{
		userID:        sess.UserID,
		state:         StateBasicInfo,
		draft:         sess.Draft,
		fieldErrors:   form.ErrorMap{},
		submitted:     sess.Submitted,
		adminLogged:   sess.AdminLogged,
		gw:            cfg.Gateway,
		sessions:      cfg.Sessions,
		verifier:      cfg.Verifier,
		submitTimeout: timeout,
		watchers:      make(map[int]chan Snapshot),
	}

	m.mu.Lock()
	switch {
	case m.adminLogged:
		m.state = StateAdminPanel
	case m.submitted:
		m.state = StateWaiting
		m.startListenerLocked()
	}
	m.mu.Unlock()

	return m
}

// UserID devolve o identificador estável do dispositivo
func (m *Machine) UserID() uuid.UUID { return m.userID }

// Snapshot devolve a visão atual do fluxo
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	draft := m.draft
	draft.FotoFrente = nil
	draft.FotoVerso = nil

	errs := make(form.ErrorMap, len(m.fieldErrors))
	for k, v := range m.fieldErrors {
		errs[k] = v
	}

	return Snapshot{
		State:         m.state,
		Draft:         draft,
		HasFotoFrente: m.draft.FotoFrente != nil,
		HasFotoVerso:  m.draft.FotoVerso != nil,
		FieldErrors:   errs,
		Result:        m.result,
		Submitted:     m.submitted,
	}
}

// Watch abre um canal que recebe um snapshot a cada transição.
// O cancelamento é idempotente.
func (m *Machine) Watch() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextWatcher
	m.nextWatcher++
	ch := make(chan Snapshot, 8)
	m.watchers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
	return ch, cancel
}

func (m *Machine) notifyLocked() {
	snap := m.snapshotLocked()
	for _, ch := range m.watchers {
		select {
		case ch <- snap:
		default: // observador lento perde snapshots intermediários
		}
	}
}

// DraftUpdate atualiza campos individuais do rascunho; nil deixa como está
type DraftUpdate struct {
	Nome          *string
	Idade         *string
	Email         *string
	Whatsapp      *string
	TermosAceitos *bool
}

// UpdateDraft aplica edições de campo. Só faz sentido nas etapas do
// formulário; os campos editados têm o erro anterior limpo.
func (m *Machine) UpdateDraft(ctx context.Context, u DraftUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.inFormLocked() {
		return ErrInvalidTransition
	}

	if u.Nome != nil {
		m.draft.Nome = *u.Nome
		delete(m.fieldErrors, "nome")
	}
	if u.Idade != nil {
		m.draft.Idade = *u.Idade
		delete(m.fieldErrors, "idade")
	}
	if u.Email != nil {
		m.draft.Email = *u.Email
		delete(m.fieldErrors, "email")
	}
	if u.Whatsapp != nil {
		m.draft.Whatsapp = *u.Whatsapp
		delete(m.fieldErrors, "whatsapp")
	}
	if u.TermosAceitos != nil {
		m.draft.TermosAceitos = *u.TermosAceitos
		delete(m.fieldErrors, "termosAceitos")
	}

	m.persistLocked(ctx)
	m.notifyLocked()
	return nil
}

// AttachDocument guarda uma foto no rascunho, só em memória
func (m *Machine) AttachDocument(ctx context.Context, slot models.DocumentSlot, img *models.DocumentImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.inFormLocked() {
		return ErrInvalidTransition
	}
	if !slot.Valid() {
		return errors.New("slot de documento desconhecido")
	}

	if slot == models.SlotFotoFrente {
		m.draft.FotoFrente = img
		delete(m.fieldErrors, "fotoFrente")
	} else {
		m.draft.FotoVerso = img
		delete(m.fieldErrors, "fotoVerso")
	}

	m.notifyLocked()
	return nil
}

// RemoveDocument descarta uma foto já aceita
func (m *Machine) RemoveDocument(ctx context.Context, slot models.DocumentSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.inFormLocked() {
		return ErrInvalidTransition
	}
	if !slot.Valid() {
		return errors.New("slot de documento desconhecido")
	}

	if slot == models.SlotFotoFrente {
		m.draft.FotoFrente = nil
	} else {
		m.draft.FotoVerso = nil
	}

	m.notifyLocked()
	return nil
}

// Advance valida a etapa atual e avança. Nenhum efeito no backend
// acontece antes da etapa de termos ser validada.
func (m *Machine) Advance(ctx context.Context) (form.ErrorMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var step form.Step
	var next State
	switch m.state {
	case StateBasicInfo:
		step, next = form.StepBasicInfo, StateDocuments
	case StateDocuments:
		step, next = form.StepDocuments, StateTerms
	default:
		// A partir de Terms o próximo passo é Submit
		return nil, ErrInvalidTransition
	}

	if errs := form.Validate(step, m.draft); len(errs) > 0 {
		m.fieldErrors = errs
		m.notifyLocked()
		return errs, nil
	}

	m.fieldErrors = form.ErrorMap{}
	m.state = next
	m.persistLocked(ctx)
	m.notifyLocked()
	return nil, nil
}

// Retreat volta uma etapa sem validar, preservando os valores digitados
func (m *Machine) Retreat(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateDocuments:
		m.state = StateBasicInfo
	case StateTerms:
		m.state = StateDocuments
	default:
		return ErrInvalidTransition
	}

	m.persistLocked(ctx)
	m.notifyLocked()
	return nil
}

// Submit executa o ciclo de envio: upload das duas fotos, criação do
// registro e transição para Waiting. Qualquer falha devolve a máquina
// para Terms com o rascunho intacto; o retry refaz os dois uploads.
func (m *Machine) Submit(ctx context.Context) (form.ErrorMap, error) {
	m.mu.Lock()
	if m.state == StateSubmitting {
		m.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if m.state != StateTerms {
		m.mu.Unlock()
		return nil, ErrInvalidTransition
	}

	// Valida tudo de novo: o envio é a última barreira
	errs := form.ErrorMap{}
	for _, step := range []form.Step{form.StepBasicInfo, form.StepDocuments, form.StepTerms} {
		for field, msg := range form.Validate(step, m.draft) {
			errs[field] = msg
		}
	}
	if len(errs) > 0 {
		m.fieldErrors = errs
		m.mu.Unlock()
		return errs, nil
	}

	m.fieldErrors = form.ErrorMap{}
	m.state = StateSubmitting
	draft := m.draft // cópia; os blobs são compartilhados só para leitura
	userID := m.userID
	m.notifyLocked()
	m.mu.Unlock()

	err := m.send(ctx, draft, userID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state = StateTerms
		m.notifyLocked()
		return nil, err
	}

	m.submitted = true
	m.draft = models.Draft{}
	m.state = StateWaiting
	m.persistLocked(ctx)
	m.startListenerLocked()
	m.notifyLocked()
	return nil, nil
}

// send faz os uploads em paralelo e cria o registro, sob um timeout
// para um upload travado não prender a máquina em Submitting
func (m *Machine) send(ctx context.Context, draft models.Draft, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, m.submitTimeout)
	defer cancel()

	var frenteURL, versoURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := m.gw.UploadDocumentImage(gctx, draft.FotoFrente, userID)
		frenteURL = url
		return err
	})
	g.Go(func() error {
		url, err := m.gw.UploadDocumentImage(gctx, draft.FotoVerso, userID)
		versoURL = url
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	idade, err := form.ParseIdade(draft.Idade)
	if err != nil {
		return &gateway.PersistenceError{Op: "normalize", Err: err}
	}

	sub := &models.Submission{
		Nome:          strings.TrimSpace(draft.Nome),
		Idade:         idade,
		Email:         form.NormalizeEmail(draft.Email),
		Whatsapp:      form.NormalizeWhatsapp(draft.Whatsapp),
		FotoFrenteURL: frenteURL,
		FotoVersoURL:  versoURL,
		UserID:        userID,
	}
	return m.gw.CreateSubmission(ctx, sub)
}

// startListenerLocked abre a assinatura do resultado e faz a checagem
// imediata, cobrindo o caso do backend já ter decidido antes da
// assinatura existir. Chamado com o lock da máquina.
func (m *Machine) startListenerLocked() {
	owner := m.userID
	filter := gateway.Filter{OwnerID: &owner}

	unsub, err := m.gw.Subscribe(filter, m.onOwnEvent)
	if err != nil {
		// O fluxo continua em Waiting; a checagem imediata ainda roda
		log.Printf("Erro ao abrir assinatura de resultado de %s: %v", owner, err)
	} else {
		m.unsubscribe = unsub
	}

	existing, err := m.gw.ListSubmissions(context.Background(), filter)
	if err != nil {
		log.Printf("Erro na checagem imediata de resultado de %s: %v", owner, err)
		return
	}
	for _, sub := range existing {
		if sub.Status.Terminal() {
			m.state = StateResult
			m.result = sub.Status
			m.stopListenerLocked()
			break
		}
	}
}

// stopListenerLocked fecha a assinatura exatamente uma vez
func (m *Machine) stopListenerLocked() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// onOwnEvent recebe as mudanças das submissões deste usuário
func (m *Machine) onOwnEvent(ev gateway.Event) {
	if ev.Kind == gateway.EventDeleted || ev.Submission == nil {
		return
	}
	if !ev.Submission.Status.Terminal() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Result é terminal e a transição acontece exatamente uma vez,
	// mesmo com reentrega do push
	if m.state != StateWaiting {
		return
	}
	m.state = StateResult
	m.result = ev.Submission.Status
	m.stopListenerLocked()
	m.notifyLocked()
}

// EnterAdminLogin abre a tela de login do administrador. Inacessível a
// partir de Waiting, Result e durante um envio.
func (m *Machine) EnterAdminLogin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateAdminLogin:
		return nil
	case StateBasicInfo, StateDocuments, StateTerms:
		m.state = StateAdminLogin
		m.notifyLocked()
		return nil
	default:
		return ErrInvalidTransition
	}
}

// LeaveAdminLogin volta para o formulário sem autenticar
func (m *Machine) LeaveAdminLogin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAdminLogin {
		return ErrInvalidTransition
	}
	m.state = StateBasicInfo
	m.notifyLocked()
	return nil
}

// AdminLogin compara a senha no servidor. Acerto entra no painel e marca
// a sessão; erro devolve a mensagem genérica e não muda nada.
func (m *Machine) AdminLogin(ctx context.Context, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAdminLogin {
		return ErrInvalidTransition
	}
	if err := m.verifier.Verify(password); err != nil {
		return err
	}

	m.adminLogged = true
	m.state = StateAdminPanel
	m.persistLocked(ctx)
	m.notifyLocked()
	return nil
}

// AdminLogout limpa a flag de admin e devolve o fluxo do dispositivo.
// Quem já enviou volta para Waiting, nunca para o formulário.
func (m *Machine) AdminLogout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAdminPanel {
		return ErrInvalidTransition
	}

	m.adminLogged = false
	if m.submitted {
		m.state = StateWaiting
		m.startListenerLocked()
	} else {
		m.state = StateBasicInfo
	}
	m.persistLocked(ctx)
	m.notifyLocked()
	return nil
}

// Close encerra a assinatura ativa, se houver. Usado no shutdown.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopListenerLocked()
}

func (m *Machine) inFormLocked() bool {
	return m.state == StateBasicInfo || m.state == StateDocuments || m.state == StateTerms
}

// persistLocked salva a sessão; falha de persistência não desfaz a
// transição, só fica registrada
func (m *Machine) persistLocked(ctx context.Context) {
	sess := &models.Session{
		UserID:      m.userID,
		Draft:       m.draft,
		Submitted:   m.submitted,
		AdminLogged: m.adminLogged,
	}
	if err := m.sessions.Save(ctx, sess); err != nil {
		log.Printf("Erro ao salvar sessão de %s: %v", m.userID, err)
	}
}
