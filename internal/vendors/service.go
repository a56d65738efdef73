package vendors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ttacon/libphonenumber"

	"github.com/odyssey-erp/payables/internal/platform/storage"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

// RepositoryPort defines data access methods for vendors.
type RepositoryPort interface {
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	ListVendors(ctx context.Context, filter ListFilter) ([]Summary, error)
	ListBanks(ctx context.Context, vendorID int64) ([]BankDetail, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, vendorID int64) ([]Document, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Invalidator drops cached report data after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service implements vendor onboarding, bank details and KYC documents.
type Service struct {
	repo        RepositoryPort
	store       storage.Store
	cache       Invalidator
	logger      *slog.Logger
	phoneRegion string
	now         func() time.Time
}

// NewService builds the vendor service. phoneRegion is the ISO region used
// for numbers written without a country code.
func NewService(repo RepositoryPort, store storage.Store, cache Invalidator, logger *slog.Logger, phoneRegion string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if phoneRegion == "" {
		phoneRegion = "IN"
	}
	return &Service{repo: repo, store: store, cache: cache, logger: logger, phoneRegion: phoneRegion, now: time.Now}
}

// NormalizePhone validates a phone number and returns it in E.164 form. An
// empty number stays empty.
func (s *Service) NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(raw, s.phoneRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("%w: invalid phone number %q", shared.ErrValidation, raw)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

func (s *Service) applyInput(v *Vendor, in VendorInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: vendor name required", shared.ErrValidation)
	}
	phone, err := s.NormalizePhone(in.Phone)
	if err != nil {
		return err
	}
	v.Name = name
	v.ContactPerson = strings.TrimSpace(in.ContactPerson)
	v.Email = strings.TrimSpace(in.Email)
	v.Phone = phone
	v.Address = strings.TrimSpace(in.Address)
	v.TaxID = strings.TrimSpace(in.TaxID)
	v.RegistrationNumber = strings.TrimSpace(in.RegistrationNumber)
	return nil
}

// Create registers a vendor. New vendors always start active.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in VendorInput) (Vendor, error) {
	if err := rbac.Authorize(actor, shared.PermVendorsEdit); err != nil {
		return Vendor{}, err
	}
	var v Vendor
	if err := s.applyInput(&v, in); err != nil {
		return Vendor{}, err
	}
	v.Status = StatusActive
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertVendor(ctx, v)
		if err != nil {
			return err
		}
		v.ID = id
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditCreated, EntityType: "vendor", EntityID: id,
			Details: "Created vendor: " + v.Name,
		})
	})
	if err != nil {
		return Vendor{}, fmt.Errorf("vendors: create: %w", err)
	}
	s.invalidate(ctx)
	return s.repo.GetVendor(ctx, v.ID)
}

// Update overwrites every vendor field, status included.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, in VendorInput) (Vendor, error) {
	if err := rbac.Authorize(actor, shared.PermVendorsEdit); err != nil {
		return Vendor{}, err
	}
	v, err := s.repo.GetVendor(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	if err := s.applyInput(&v, in); err != nil {
		return Vendor{}, err
	}
	if in.Status != "" {
		if !validStatus(in.Status) {
			return Vendor{}, fmt.Errorf("%w: unknown vendor status %q", shared.ErrValidation, in.Status)
		}
		v.Status = in.Status
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateVendor(ctx, v); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditUpdated, EntityType: "vendor", EntityID: id,
			Details: "Updated vendor: " + v.Name,
		})
	})
	if err != nil {
		return Vendor{}, fmt.Errorf("vendors: update: %w", err)
	}
	s.invalidate(ctx)
	return s.repo.GetVendor(ctx, id)
}

// Get returns one vendor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Vendor, error) {
	if err := rbac.AuthorizeAny(actor, shared.PermVendorsView, shared.PermVendorDocumentsReview); err != nil {
		return Vendor{}, err
	}
	return s.repo.GetVendor(ctx, id)
}

// List returns vendors with invoice counts and outstanding amounts.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Summary, error) {
	if err := rbac.Authorize(actor, shared.PermVendorsView); err != nil {
		return nil, err
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown vendor status %q", shared.ErrValidation, filter.Status)
	}
	return s.repo.ListVendors(ctx, filter)
}

// ListBanks returns the bank details of a vendor.
func (s *Service) ListBanks(ctx context.Context, actor shared.Actor, vendorID int64) ([]BankDetail, error) {
	if err := rbac.Authorize(actor, shared.PermVendorsView); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	return s.repo.ListBanks(ctx, vendorID)
}

// AddBank stores a bank detail. A primary account demotes every other
// account of the vendor in the same transaction.
func (s *Service) AddBank(ctx context.Context, actor shared.Actor, vendorID int64, in BankInput) (BankDetail, error) {
	if err := rbac.Authorize(actor, shared.PermVendorsEdit); err != nil {
		return BankDetail{}, err
	}
	b, err := bankFromInput(vendorID, in)
	if err != nil {
		return BankDetail{}, err
	}
	if _, err := s.repo.GetVendor(ctx, vendorID); err != nil {
		return BankDetail{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if b.IsPrimary {
			if err := tx.UnsetPrimaryBanks(ctx, vendorID, 0); err != nil {
				return err
			}
		}
		id, err := tx.InsertBank(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditCreated, EntityType: "vendor_bank", EntityID: id,
			Details: fmt.Sprintf("Added bank %s for vendor %d", b.BankName, vendorID),
		})
	})
	if err != nil {
		return BankDetail{}, fmt.Errorf("vendors: add bank: %w", err)
	}
	return b, nil
}

// UpdateBank rewrites a bank detail with the same primary rule as AddBank.
func (s *Service) UpdateBank(ctx context.Context, actor shared.Actor, vendorID, bankID int64, in BankInput) (BankDetail, error) {
	if err := rbac.Authorize(actor, shared.PermVendorsEdit); err != nil {
		return BankDetail{}, err
	}
	b, err := bankFromInput(vendorID, in)
	if err != nil {
		return BankDetail{}, err
	}
	b.ID = bankID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if b.IsPrimary {
			if err := tx.UnsetPrimaryBanks(ctx, vendorID, bankID); err != nil {
				return err
			}
		}
		if err := tx.UpdateBank(ctx, b); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditUpdated, EntityType: "vendor_bank", EntityID: bankID,
			Details: fmt.Sprintf("Updated bank %s for vendor %d", b.BankName, vendorID),
		})
	})
	if err != nil {
		return BankDetail{}, fmt.Errorf("vendors: update bank: %w", err)
	}
	return b, nil
}

// DeleteBank removes a bank detail.
func (s *Service) DeleteBank(ctx context.Context, actor shared.Actor, vendorID, bankID int64) error {
	if err := rbac.Authorize(actor, shared.PermVendorsEdit); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteBank(ctx, vendorID, bankID); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditDeleted, EntityType: "vendor_bank", EntityID: bankID,
			Details: fmt.Sprintf("Deleted bank for vendor %d", vendorID),
		})
	})
	if err != nil {
		return fmt.Errorf("vendors: delete bank: %w", err)
	}
	return nil
}

// DocumentFileName builds the stored name of a KYC upload.
func DocumentFileName(vendorID int64, docType, original string, at time.Time) string {
	return fmt.Sprintf("vendor_%d_%s_%s%s", vendorID, strings.ReplaceAll(docType, " ", "_"), at.Format("20060102150405"), strings.ToLower(filepath.Ext(original)))
}

// UploadDocument stores a KYC file and records it as pending review.
func (s *Service) UploadDocument(ctx context.Context, actor shared.Actor, vendorID int64, docType, filename string, body io.Reader) (Document, error) {
	if err := rbac.Authorize(actor, shared.PermVendorsEdit); err != nil {
		return Document{}, err
	}
	if !validDocumentType(docType) {
		return Document{}, fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, docType)
	}
	if strings.TrimSpace(filename) == "" {
		return Document{}, fmt.Errorf("%w: file required", shared.ErrValidation)
	}
	if _, err := s.repo.GetVendor(ctx, vendorID); err != nil {
		return Document{}, err
	}
	path, err := s.store.Save(ctx, DocumentFileName(vendorID, docType, filename, s.now()), body)
	if err != nil {
		return Document{}, fmt.Errorf("vendors: save document: %w", err)
	}
	doc := Document{VendorID: vendorID, Type: docType, Path: path, Status: DocumentPending, UploadedAt: s.now()}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditCreated, EntityType: "vendor_document", EntityID: id,
			Details: fmt.Sprintf("Uploaded %s for vendor %d", docType, vendorID),
		})
	})
	if err != nil {
		if rmErr := s.store.Remove(ctx, path); rmErr != nil && !errors.Is(rmErr, storage.ErrNotExist) {
			s.logger.Warn("remove orphaned document", slog.String("path", path), slog.Any("error", rmErr))
		}
		return Document{}, fmt.Errorf("vendors: record document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the KYC documents of a vendor.
func (s *Service) ListDocuments(ctx context.Context, actor shared.Actor, vendorID int64) ([]Document, error) {
	if err := rbac.AuthorizeAny(actor, shared.PermVendorsView, shared.PermVendorDocumentsReview); err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, vendorID)
}

// OpenDocument returns the document record and its file. A missing file
// is reported as ErrNotFound.
func (s *Service) OpenDocument(ctx context.Context, actor shared.Actor, id int64) (Document, io.ReadCloser, error) {
	if err := rbac.AuthorizeAny(actor, shared.PermVendorsView, shared.PermVendorDocumentsReview); err != nil {
		return Document{}, nil, err
	}
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := s.store.Open(ctx, doc.Path)
	if errors.Is(err, storage.ErrNotExist) {
		return Document{}, nil, fmt.Errorf("%w: document file %s", shared.ErrNotFound, doc.Path)
	}
	if err != nil {
		return Document{}, nil, err
	}
	return doc, rc, nil
}

// UpdateDocumentStatus records a KYC review decision.
func (s *Service) UpdateDocumentStatus(ctx context.Context, actor shared.Actor, id int64, status string) error {
	if err := rbac.Authorize(actor, shared.PermVendorDocumentsReview); err != nil {
		return err
	}
	if status != DocumentPending && status != DocumentApproved && status != DocumentRejected {
		return fmt.Errorf("%w: unknown document status %q", shared.ErrValidation, status)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateDocumentStatus(ctx, id, status); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditUpdated, EntityType: "vendor_document", EntityID: id,
			Details: "Document status set to " + status,
		})
	})
	if err != nil {
		return fmt.Errorf("vendors: update document status: %w", err)
	}
	return nil
}

// DeleteDocument removes the record and its file. A file that is already
// gone is ignored.
func (s *Service) DeleteDocument(ctx context.Context, actor shared.Actor, id int64) error {
	if err := rbac.Authorize(actor, shared.PermVendorDocumentsDelete); err != nil {
		return err
	}
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteDocument(ctx, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditDeleted, EntityType: "vendor_document", EntityID: id,
			Details: fmt.Sprintf("Deleted %s of vendor %d", doc.Type, doc.VendorID),
		})
	})
	if err != nil {
		return fmt.Errorf("vendors: delete document: %w", err)
	}
	if err := s.store.Remove(ctx, doc.Path); err != nil && !errors.Is(err, storage.ErrNotExist) {
		s.logger.Warn("remove document file", slog.String("path", doc.Path), slog.Any("error", err))
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump report cache", slog.Any("error", err))
	}
}

func bankFromInput(vendorID int64, in BankInput) (BankDetail, error) {
	b := BankDetail{
		VendorID:      vendorID,
		BankName:      strings.TrimSpace(in.BankName),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		IFSCCode:      strings.ToUpper(strings.TrimSpace(in.IFSCCode)),
		AccountType:   strings.TrimSpace(in.AccountType),
		BranchName:    strings.TrimSpace(in.BranchName),
		IsPrimary:     in.IsPrimary,
	}
	if b.BankName == "" || b.AccountNumber == "" {
		return BankDetail{}, fmt.Errorf("%w: bank name and account number required", shared.ErrValidation)
	}
	return b, nil
}

func validStatus(status string) bool {
	switch status {
	case StatusActive, StatusInactive, StatusBlacklisted:
		return true
	}
	return false
}

func validDocumentType(t string) bool {
	for _, known := range DocumentTypes {
		if known == t {
			return true
		}
	}
	return false
}
