package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"stickerquote/internal/config"
	"stickerquote/internal/domain"
	"stickerquote/internal/infra/logging"
	"stickerquote/internal/pricing"
	"stickerquote/internal/quote"
	"stickerquote/internal/store"
)

// ProfileService exposes persisted sidebar state and saved quotes.
type ProfileService struct {
	Config *config.Config
	Store  *store.Store
}

func NewProfileService(cfg config.Config, st *store.Store) *ProfileService {
	return &ProfileService{Config: &cfg, Store: st}
}

type saveQuoteRequest struct {
	Name     string          `json:"name"`
	Material string          `json:"material"`
	Stickers []quote.Sticker `json:"stickers"`
}

// HandleGetState returns the stored state, or defaults for a new profile.
func (svc *ProfileService) HandleGetState(c *fiber.Ctx) error {
	st, found, err := svc.Store.LoadState(c.Context(), c.Params("profile"))
	if err != nil {
		return storeError(err)
	}
	if !found {
		st = store.State{
			VATRate:  svc.Config.Pricing.DefaultVATRate,
			Material: pricing.Unspecified,
			Stickers: []quote.Sticker{},
		}
	}
	return c.JSON(st)
}

func (svc *ProfileService) HandlePutState(c *fiber.Ctx) error {
	var st store.State
	if err := json.Unmarshal(c.Body(), &st); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if st.VATRate < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "vat_rate must not be negative")
	}
	if err := svc.checkStickers(len(st.Stickers)); err != nil {
		return err
	}
	if st.Stickers == nil {
		st.Stickers = []quote.Sticker{}
	}
	if err := svc.Store.SaveState(c.Context(), c.Params("profile"), st); err != nil {
		return storeError(err)
	}
	return c.JSON(st)
}

func (svc *ProfileService) HandleListQuotes(c *fiber.Ctx) error {
	quotes, err := svc.Store.ListQuotes(c.Context(), c.Params("profile"))
	if err != nil {
		return storeError(err)
	}
	if quotes == nil {
		quotes = []store.SavedQuote{}
	}
	return c.JSON(fiber.Map{"quotes": quotes})
}

func (svc *ProfileService) HandleSaveQuote(c *fiber.Ctx) error {
	var req saveQuoteRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if err := svc.checkStickers(len(req.Stickers)); err != nil {
		return err
	}
	saved, err := svc.Store.SaveQuote(c.Context(), c.Params("profile"), store.SavedQuote{
		Name:     req.Name,
		Material: req.Material,
		Stickers: req.Stickers,
	})
	if err != nil {
		return storeError(err)
	}
	logging.Info("Quote saved", "profile", c.Params("profile"), "id", saved.ID)
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (svc *ProfileService) HandleGetQuote(c *fiber.Ctx) error {
	q, err := svc.Store.GetQuote(c.Context(), c.Params("profile"), c.Params("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(q)
}

func (svc *ProfileService) HandleDeleteQuote(c *fiber.Ctx) error {
	if err := svc.Store.DeleteQuote(c.Context(), c.Params("profile"), c.Params("id")); err != nil {
		return storeError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleLoadQuote copies a saved quote into the profile's state.
func (svc *ProfileService) HandleLoadQuote(c *fiber.Ctx) error {
	st, err := svc.Store.LoadQuoteIntoState(c.Context(), c.Params("profile"), c.Params("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(st)
}

func (svc *ProfileService) checkStickers(n int) error {
	if limit := svc.Config.Limits.MaxStickers; limit > 0 && n > limit {
		return fiber.NewError(fiber.StatusBadRequest, "too many stickers")
	}
	return nil
}

// storeError maps store failures onto HTTP errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidProfile), errors.Is(err, domain.ErrQuoteNameRequired):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrQuoteNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	logging.Error("Store operation failed", "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, "Storage error")
}
