package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// requireUser authenticates the bearer token and stores the principal in
// the request context.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := httpmiddleware.BearerToken(r)
		if !ok {
			writeError(w, r, errUnauthorized)
			return
		}
		p, err := h.Auth.Authenticate(r.Context(), raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("account_id", p.AccountID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin must run after requireUser.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principal(r).IsAdmin {
			writeError(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principal returns the caller set by requireUser.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

type registerRequest struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Address   string
}

func (req *registerRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "username":
			req.Username, err = decodeStr(d)
		case "password":
			req.Password, err = decodeStr(d)
		case "email":
			req.Email, err = decodeStr(d)
		case "first_name":
			req.FirstName, err = decodeStr(d)
		case "last_name":
			req.LastName, err = decodeStr(d)
		case "phone":
			req.Phone, err = decodeStr(d)
		case "address":
			req.Address, err = decodeStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

func (req registerRequest) registration() customer.Registration {
	return customer.Registration{
		Username: req.Username,
		Password: req.Password,
		Profile: customer.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
			Address:   req.Address,
		},
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, c, err := h.Customers.Register(r.Context(), req.registration())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeAccountFields(e, *acc)
		strField(e, "customer_id", c.ID)
	})
}

type credentials struct {
	Username string
	Password string
}

func (req *credentials) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "username":
			req.Username, err = decodeStr(d)
		case "password":
			req.Password, err = decodeStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// token accepts the OAuth2 password form or a JSON body.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, r, apperr.Invalid("body", "is not a valid form"))
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, apperr.Invalid("username", "username and password are required"))
		return
	}

	tok, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		strField(e, "access_token", tok.AccessToken)
		strField(e, "token_type", "bearer")
		timeField(e, "expires_at", tok.ExpiresAt)
	})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Auth.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, a := range accounts {
				e.Obj(func(e *jx.Encoder) { encodeAccountFields(e, a) })
			}
		})
	})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	a, err := h.Auth.Account(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) { encodeAccountFields(e, *a) })
}

func encodeAccountFields(e *jx.Encoder, a auth.Account) {
	strField(e, "id", a.ID)
	strField(e, "username", a.Username)
	optStrField(e, "email", a.Email)
	boolField(e, "is_active", a.IsActive)
	boolField(e, "is_admin", a.IsAdmin)
	timeField(e, "created_at", a.CreatedAt)
}

// flagRequest carries a boolean flag from the query string or a JSON body.
type flagRequest struct {
	name  string
	value *bool
}

func (req *flagRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != req.name {
			return d.Skip()
		}
		v, err := d.Bool()
		if err != nil {
			return apperr.Invalid(req.name, "must be a boolean")
		}
		req.value = &v
		return nil
	})
}

func (h *Handler) readFlag(w http.ResponseWriter, r *http.Request, name string) (bool, error) {
	if raw := r.URL.Query().Get(name); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return false, apperr.Invalid(name, "must be a boolean")
		}
		return v, nil
	}
	req := flagRequest{name: name}
	if err := h.readJSON(w, r, &req); err != nil {
		return false, err
	}
	if req.value == nil {
		return false, apperr.Invalid(name, "is required")
	}
	return *req.value, nil
}

func (h *Handler) setAdminStatus(w http.ResponseWriter, r *http.Request) {
	admin, err := h.readFlag(w, r, "is_admin")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Auth.SetAdmin(r.Context(), principal(r), chi.URLParam(r, "id"), admin); err != nil {
		writeError(w, r, err)
		return
	}
	msg := "User admin status revoked successfully"
	if admin {
		msg = "User admin status granted successfully"
	}
	writeObject(w, http.StatusOK, messageBody(msg))
}

func (h *Handler) setActiveStatus(w http.ResponseWriter, r *http.Request) {
	active, err := h.readFlag(w, r, "is_active")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Auth.SetActive(r.Context(), principal(r), chi.URLParam(r, "id"), active); err != nil {
		writeError(w, r, err)
		return
	}
	msg := "User deactivated successfully"
	if active {
		msg = "User activated successfully"
	}
	writeObject(w, http.StatusOK, messageBody(msg))
}
