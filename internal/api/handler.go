package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"verifica18-backend/internal/admin"
	"verifica18-backend/internal/auth"
	"verifica18-backend/internal/flow"
	"verifica18-backend/internal/gateway"
	"verifica18-backend/internal/models"
	"verifica18-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Handler gerencia as dependências para os handlers HTTP
type Handler struct {
	flows          *flow.Manager
	panel          *admin.Panel
	tokenService   *auth.TokenService
	validate       *validator.Validate
	maxUploadBytes int64
	allowedOrigins []string
}

// NewHandler cria uma nova instância do Handler
func NewHandler(
	flows *flow.Manager,
	panel *admin.Panel,
	tokenSvc *auth.TokenService,
	maxUploadBytes int64,
	allowedOrigins []string,
) *Handler {
	return &Handler{
		flows:          flows,
		panel:          panel,
		tokenService:   tokenSvc,
		validate:       validator.New(),
		maxUploadBytes: maxUploadBytes,
		allowedOrigins: allowedOrigins,
	}
}

// === Funções Auxiliares de Resposta ===

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Erro ao serializar JSON: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"Erro interno ao serializar resposta"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondFieldErrors devolve os erros de validação campo a campo
func (h *Handler) respondFieldErrors(w http.ResponseWriter, errs map[string]string) {
	h.respondWithJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"fieldErrors": errs,
	})
}

// respondFlowError traduz os erros do fluxo para códigos HTTP
func (h *Handler) respondFlowError(w http.ResponseWriter, err error) {
	var uploadErr *gateway.UploadError
	var persistErr *gateway.PersistenceError

	switch {
	case errors.Is(err, flow.ErrSubmitInFlight):
		h.respondWithError(w, http.StatusConflict, "Envio já em andamento")
	case errors.Is(err, flow.ErrInvalidTransition):
		h.respondWithError(w, http.StatusConflict, "Operação inválida para a etapa atual")
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &uploadErr):
		h.respondWithError(w, http.StatusBadGateway, "Erro ao enviar. Tente novamente.")
	case errors.As(err, &persistErr):
		h.respondWithError(w, http.StatusBadGateway, "Erro ao enviar. Tente novamente.")
	default:
		h.respondWithError(w, http.StatusInternalServerError, "Erro interno")
	}
}

// === Handlers de Sessão e Fluxo ===

// handleCreateSession (POST /v1/session)
// Emite um userId novo ou ecoa o que o cliente já guardou, garantindo
// que a sessão e a máquina existem.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	// Corpo vazio é aceito: primeira visita
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		userID = uuid.New()
	}

	m, err := h.flows.Machine(r.Context(), userID)
	if err != nil {
		log.Printf("Erro ao abrir sessão de %s: %v", userID, err)
		h.respondWithError(w, http.StatusInternalServerError, "Erro ao abrir sessão")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"userId": m.UserID(),
		"flow":   m.Snapshot(),
	})
}

// handleGetFlow (GET /v1/flow)
func (h *Handler) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}
	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleUpdateDraft (PUT /v1/flow/draft)
func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	// Campos ausentes do JSON ficam como estão; presentes são aplicados
	var req struct {
		Nome          *string `json:"nome"`
		Idade         *string `json:"idade"`
		Email         *string `json:"email"`
		Whatsapp      *string `json:"whatsapp"`
		TermosAceitos *bool   `json:"termosAceitos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Payload JSON inválido")
		return
	}

	err := m.UpdateDraft(r.Context(), flow.DraftUpdate{
		Nome:          req.Nome,
		Idade:         req.Idade,
		Email:         req.Email,
		Whatsapp:      req.Whatsapp,
		TermosAceitos: req.TermosAceitos,
	})
	if err != nil {
		h.respondFlowError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleAttachDocument (POST /v1/flow/documents)
// Recebe multipart com os campos "slot" e "file". A foto fica só na
// memória da máquina até o envio.
func (h *Handler) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	// Folga para os headers do multipart além da foto em si
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+512*1024)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.respondWithError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Arquivo muito grande. Máximo %dMB.", h.maxUploadBytes/(1024*1024)))
			return
		}
		h.respondWithError(w, http.StatusBadRequest, "Multipart inválido")
		return
	}

	slot := models.DocumentSlot(r.FormValue("slot"))
	if !slot.Valid() {
		h.respondWithError(w, http.StatusBadRequest, "Slot de documento desconhecido")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Campo 'file' é obrigatório")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Erro ao ler o arquivo")
		return
	}

	img := &models.DocumentImage{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}

	// Mesma validação que o upload fará depois: recusar agora evita um
	// envio fadado a falhar
	if _, err := storage.ValidateImage(img); err != nil {
		h.respondFieldErrors(w, map[string]string{string(slot): imageErrorMessage(err)})
		return
	}

	if err := m.AttachDocument(r.Context(), slot, img); err != nil {
		h.respondFlowError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

func imageErrorMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrImageTooLarge):
		return "Arquivo muito grande. Máximo 10MB."
	case errors.Is(err, storage.ErrUnsupportedImageType):
		return "Formato não suportado. Use JPEG, PNG ou WebP."
	default:
		return "Arquivo inválido"
	}
}

// handleRemoveDocument (DELETE /v1/flow/documents/{slot})
func (h *Handler) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	slot := models.DocumentSlot(chi.URLParam(r, "slot"))
	if !slot.Valid() {
		h.respondWithError(w, http.StatusBadRequest, "Slot de documento desconhecido")
		return
	}

	if err := m.RemoveDocument(r.Context(), slot); err != nil {
		h.respondFlowError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleAdvance (POST /v1/flow/advance)
func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	errs, err := m.Advance(r.Context())
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	if len(errs) > 0 {
		h.respondFieldErrors(w, errs)
		return
	}

	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleRetreat (POST /v1/flow/retreat)
func (h *Handler) handleRetreat(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	if err := m.Retreat(r.Context()); err != nil {
		h.respondFlowError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleSubmit (POST /v1/flow/submit)
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	errs, err := m.Submit(r.Context())
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	if len(errs) > 0 {
		h.respondFieldErrors(w, errs)
		return
	}

	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleFlowEvents (GET /v1/flow/events)
// SSE com um snapshot a cada transição; é por aqui que o navegador
// descobre o resultado enquanto espera.
func (h *Handler) handleFlowEvents(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondWithError(w, http.StatusInternalServerError, "Streaming não suportado")
		return
	}

	ch, cancel := m.Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Snapshot inicial antes de qualquer transição
	writeSSE(w, m.Snapshot())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, snap)
			flusher.Flush()
		}
	}
}

// === Handlers de Administração ===

// handleAdminEnter (POST /v1/flow/admin-login)
func (h *Handler) handleAdminEnter(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	if err := m.EnterAdminLogin(); err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleAdminLeave (DELETE /v1/flow/admin-login)
func (h *Handler) handleAdminLeave(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	if err := m.LeaveAdminLogin(r.Context()); err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleAdminLogin (POST /v1/admin/login)
// A senha é comparada no servidor; acerto devolve o token do painel.
func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	var req struct {
		Password string `json:"password" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Payload JSON inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Dados inválidos: "+err.Error())
		return
	}

	if err := m.AdminLogin(r.Context(), req.Password); err != nil {
		h.respondFlowError(w, err)
		return
	}

	token, err := h.tokenService.NewAdminToken()
	if err != nil {
		log.Printf("Erro ao emitir token de admin: %v", err)
		h.respondWithError(w, http.StatusInternalServerError, "Erro ao emitir token")
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"flow":  m.Snapshot(),
	})
}

// handleAdminLogout (POST /v1/admin/logout)
func (h *Handler) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	m, ok := machineFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Sessão não identificada")
		return
	}

	if err := m.AdminLogout(r.Context()); err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, m.Snapshot())
}

// handleListSubmissions (GET /v1/admin/submissions)
func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	items, err := h.panel.Submissions()
	if err != nil {
		if errors.Is(err, admin.ErrNotStarted) {
			h.respondWithError(w, http.StatusServiceUnavailable, "Painel indisponível")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Erro ao listar verificações")
		return
	}

	// Filtro opcional por status, aplicado sobre a lista viva
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.Status(raw)
		if !status.Valid() {
			h.respondWithError(w, http.StatusBadRequest, "Status desconhecido")
			return
		}
		filtered := make([]models.Submission, 0, len(items))
		for _, item := range items {
			if item.Status == status {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	h.respondWithJSON(w, http.StatusOK, items)
}

// handleAdminEvents (GET /v1/admin/submissions/events)
// SSE com a lista completa a cada mudança, já mesclada e ordenada
func (h *Handler) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondWithError(w, http.StatusInternalServerError, "Streaming não suportado")
		return
	}

	items, err := h.panel.Submissions()
	if err != nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Painel indisponível")
		return
	}

	ch, cancel := h.panel.Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, items)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case list, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, list)
			flusher.Flush()
		}
	}
}

// handleApprove (POST /v1/admin/submissions/{id}/approve)
func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.StatusApproved)
}

// handleReject (POST /v1/admin/submissions/{id}/reject)
func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.StatusRejected)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, status models.Status) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "ID inválido")
		return
	}

	if status == models.StatusApproved {
		err = h.panel.Approve(r.Context(), id)
	} else {
		err = h.panel.Reject(r.Context(), id)
	}

	switch {
	case err == nil:
		h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Decisão aplicada"})
	case errors.Is(err, gateway.ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, "Verificação não encontrada")
	case errors.Is(err, gateway.ErrStatusConflict):
		h.respondWithError(w, http.StatusConflict, "Verificação já decidida por outro administrador")
	case errors.Is(err, admin.ErrNotStarted):
		h.respondWithError(w, http.StatusServiceUnavailable, "Painel indisponível")
	default:
		h.respondWithError(w, http.StatusInternalServerError, "Erro ao aplicar a decisão")
	}
}

// writeSSE serializa um payload como um evento SSE de dados
func writeSSE(w io.Writer, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Erro ao serializar evento SSE: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
