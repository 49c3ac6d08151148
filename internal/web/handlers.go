package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jensholdgaard/auction-house/internal/auction"
	"github.com/jensholdgaard/auction-house/internal/session"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,max=254"`
	DisplayName string `json:"display_name" validate:"max=100"`
	Password    string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type sellRequest struct {
	Name          string    `json:"name" validate:"max=200"`
	Description   string    `json:"description" validate:"required,max=10000"`
	Category      string    `json:"category" validate:"max=100"`
	StartingPrice string    `json:"starting_price" validate:"required"`
	StartTime     time.Time `json:"start_time" validate:"required"`
}

type sellResponse struct {
	AuctionID int64 `json:"auction_id"`
}

type bidRequest struct {
	Amount string `json:"amount" validate:"required"`
}

type bidResponse struct {
	AuctionID    int64     `json:"auction_id"`
	BidID        int64     `json:"bid_id"`
	CurrentPrice string    `json:"current_price"`
	IsLeading    bool      `json:"is_leading"`
	PlacedAt     time.Time `json:"placed_at"`
}

// handleRegister creates the account and logs the new user in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.accounts.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	token, err := s.sessions.Create(r.Context(), u.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, userResponse{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	token, err := s.sessions.Create(r.Context(), u.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, userResponse{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cookie.CookieName); err == nil {
		if err := s.sessions.Destroy(r.Context(), c.Value); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	s.expireCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, p *session.Principal) {
	writeJSON(w, http.StatusOK, userResponse{UserID: p.UserID, Email: p.Email, DisplayName: p.DisplayName})
}

// handleBrowse lists running auctions. Logged-in viewers do not see their
// own items and get bid badges.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	var viewer int64
	if p, ok := PrincipalFrom(r.Context()); ok {
		viewer = p.UserID
	}
	items, err := s.auctions.OpenAuctions(r.Context(), viewer)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]browseItem, 0, len(items))
	for _, it := range items {
		out = append(out, browseItem{
			summaryResponse: newSummary(it.Summary),
			HasBid:          it.HasBid,
			IsWinning:       it.IsWinning,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": out})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}
	d, err := s.auctions.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDetail(d))
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request, p *session.Principal) {
	var req sellRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.auctions.CreateListing(r.Context(), auction.ListingInput{
		SellerID:      p.UserID,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		StartingPrice: req.StartingPrice,
		StartTime:     req.StartTime,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/auctions/"+strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusCreated, sellResponse{AuctionID: id})
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request, p *session.Principal) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}
	var req bidRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.auctions.PlaceBid(r.Context(), id, p.UserID, req.Amount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bidResponse{
		AuctionID:    res.AuctionID,
		BidID:        res.BidID,
		CurrentPrice: formatMoney(res.CurrentPrice),
		IsLeading:    res.IsLeading,
		PlacedAt:     res.PlacedAt,
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, p *session.Principal) {
	t, err := s.auctions.ClassifyForUser(r.Context(), p.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactions(t))
}

func auctionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, auction.ErrNotFound.Error())
		return 0, false
	}
	return id, true
}
