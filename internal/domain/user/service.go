package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/example/sportshop/internal/auth"
	"github.com/example/sportshop/internal/contact"
	"github.com/example/sportshop/internal/delivery"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	saveAttempts = 3
)

type Filter struct {
	// Query matches email or name.
	Query    string
	Role     Role
	Page     int
	PageSize int
}

func (f Filter) Normalize() Filter {
	f.Query = strings.TrimSpace(f.Query)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

func (f Filter) Skip() int64 {
	return int64((f.Page - 1) * f.PageSize)
}

type Page struct {
	Items      []*User `json:"items"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalPages int     `json:"total_pages"`
}

type Repository interface {
	// Insert stores a new user. A registered email yields ErrEmailTaken.
	Insert(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Save replaces the stored user if its version still equals u.Version
	// and then advances u.Version.
	Save(ctx context.Context, u *User) error
	List(ctx context.Context, f Filter) ([]*User, int64, error)
}

// Districts resolves a district against the delivery whitelist.
type Districts interface {
	District(value string) (delivery.District, bool)
}

type Service struct {
	repo          Repository
	districts     Districts
	log           *slog.Logger
	now           func() time.Time
	hashPassword  func(string) (string, error)
	checkPassword func(password, hash string) bool
}

func NewService(repo Repository, districts Districts, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		districts:     districts,
		log:           logger.With("component", "user"),
		now:           time.Now,
		hashPassword:  auth.HashPassword,
		checkPassword: auth.CheckPassword,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	return s.create(ctx, in, RoleUser)
}

// RegisterAdmin creates an administrator account. It is used to seed the
// first admin.
func (s *Service) RegisterAdmin(ctx context.Context, in RegisterInput) (*User, error) {
	return s.create(ctx, in, RoleAdmin)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role Role) (*User, error) {
	email := contact.NormalizeEmail(in.Email)
	if !contact.ValidEmail(email) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEmail, in.Email)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	phone, err := normalizeOptionalPhone(in.Phone)
	if err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Phone:        phone,
		Role:         role,
		IsActive:     true,
		Addresses:    []Address{},
		Favorites:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Authenticate checks credentials and maintains the lockout counter. A
// locked account is rejected before the password is compared.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var err error
	for range saveAttempts {
		var u *User
		u, err = s.authenticate(ctx, contact.NormalizeEmail(email), password)
		if !errors.Is(err, ErrConcurrentUpdate) {
			return u, err
		}
	}
	return nil, err
}

func (s *Service) authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUserDeactivated
	}

	now := s.now()
	released := u.releaseExpiredLock(now)
	if u.IsLocked(now) {
		return nil, fmt.Errorf("%w: try again after %s", ErrAccountLocked, u.LockedUntil.Format(time.RFC3339))
	}

	if !s.checkPassword(password, u.PasswordHash) {
		u.recordFailure(now)
		u.UpdatedAt = now
		if err := s.repo.Save(ctx, u); err != nil {
			return nil, err
		}
		if u.IsLocked(now) {
			s.log.Warn("account locked after failed logins", "user_id", u.ID, "failed_logins", u.FailedLogins)
		}
		return nil, ErrInvalidCredentials
	}

	u.recordSuccess(now)
	u.UpdatedAt = now
	if err := s.repo.Save(ctx, u); err != nil {
		return nil, err
	}
	if released {
		s.log.Info("expired login lock released", "user_id", u.ID)
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// update loads the user, applies fn and saves it, retrying on lost updates.
func (s *Service) update(ctx context.Context, id string, fn func(u *User) error) (*User, error) {
	var err error
	for range saveAttempts {
		var u *User
		u, err = s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err = fn(u); err != nil {
			return nil, err
		}
		u.UpdatedAt = s.now()
		if err = s.repo.Save(ctx, u); err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return nil, err
		}
	}
	return nil, err
}

func (s *Service) UpdateProfile(ctx context.Context, id, name, phone string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	normalized, err := normalizeOptionalPhone(phone)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, func(u *User) error {
		u.Name = name
		u.Phone = normalized
		return nil
	})
}

func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	hash, err := s.hashPassword(next)
	if err != nil {
		return err
	}
	_, err = s.update(ctx, id, func(u *User) error {
		if !s.checkPassword(current, u.PasswordHash) {
			return ErrWrongPassword
		}
		u.PasswordHash = hash
		return nil
	})
	return err
}

type AddressInput struct {
	Label     string `json:"label"`
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	Ward      string `json:"ward"`
	District  string `json:"district"`
	IsDefault bool   `json:"is_default"`
}

func (s *Service) buildAddress(in AddressInput) (Address, error) {
	street := strings.TrimSpace(in.Street)
	if street == "" || strings.TrimSpace(in.District) == "" {
		return Address{}, ErrInvalidAddress
	}
	d, ok := s.districts.District(in.District)
	if !ok {
		return Address{}, fmt.Errorf("%w: %s", ErrUnknownDistrict, in.District)
	}
	phone, err := normalizeOptionalPhone(in.Phone)
	if err != nil {
		return Address{}, err
	}
	return Address{
		Label:        strings.TrimSpace(in.Label),
		Recipient:    strings.TrimSpace(in.Recipient),
		Phone:        phone,
		Street:       street,
		Ward:         strings.TrimSpace(in.Ward),
		DistrictCode: d.Code,
		DistrictName: d.Name,
		IsDefault:    in.IsDefault,
	}, nil
}

// AddAddress saves a new address. The first address becomes the default.
func (s *Service) AddAddress(ctx context.Context, id string, in AddressInput) (*Address, error) {
	addr, err := s.buildAddress(in)
	if err != nil {
		return nil, err
	}
	addr.ID = uuid.New().String()

	u, err := s.update(ctx, id, func(u *User) error {
		if addr.IsDefault {
			clearDefault(u.Addresses)
		}
		u.Addresses = append(u.Addresses, addr)
		u.ensureDefault()
		return nil
	})
	if err != nil {
		return nil, err
	}
	saved := u.Addresses[u.addressIndex(addr.ID)]
	return &saved, nil
}

func (s *Service) UpdateAddress(ctx context.Context, id, addressID string, in AddressInput) (*Address, error) {
	addr, err := s.buildAddress(in)
	if err != nil {
		return nil, err
	}
	addr.ID = addressID

	u, err := s.update(ctx, id, func(u *User) error {
		i := u.addressIndex(addressID)
		if i < 0 {
			return ErrAddressNotFound
		}
		if addr.IsDefault {
			clearDefault(u.Addresses)
		} else {
			addr.IsDefault = u.Addresses[i].IsDefault
		}
		u.Addresses[i] = addr
		return nil
	})
	if err != nil {
		return nil, err
	}
	saved := u.Addresses[u.addressIndex(addressID)]
	return &saved, nil
}

// DeleteAddress removes an address. Removing the default promotes the next
// remaining one.
func (s *Service) DeleteAddress(ctx context.Context, id, addressID string) error {
	_, err := s.update(ctx, id, func(u *User) error {
		i := u.addressIndex(addressID)
		if i < 0 {
			return ErrAddressNotFound
		}
		u.Addresses = slices.Delete(u.Addresses, i, i+1)
		u.ensureDefault()
		return nil
	})
	return err
}

func (s *Service) SetDefaultAddress(ctx context.Context, id, addressID string) error {
	_, err := s.update(ctx, id, func(u *User) error {
		i := u.addressIndex(addressID)
		if i < 0 {
			return ErrAddressNotFound
		}
		clearDefault(u.Addresses)
		u.Addresses[i].IsDefault = true
		return nil
	})
	return err
}

func (s *Service) Addresses(ctx context.Context, id string) ([]Address, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Addresses, nil
}

// ToggleFavorite adds productID to the favorites, or removes it when already
// present. It reports whether the product is now a favorite.
func (s *Service) ToggleFavorite(ctx context.Context, id, productID string) (bool, error) {
	productID = strings.TrimSpace(productID)
	var added bool
	_, err := s.update(ctx, id, func(u *User) error {
		if i := slices.Index(u.Favorites, productID); i >= 0 {
			u.Favorites = slices.Delete(u.Favorites, i, i+1)
			added = false
			return nil
		}
		u.Favorites = append(u.Favorites, productID)
		added = true
		return nil
	})
	return added, err
}

func (s *Service) Favorites(ctx context.Context, id string) ([]string, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Favorites, nil
}

func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalize()
	if f.Role != "" && f.Role != RoleUser && f.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, f.Role)
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*User{}
	}
	pages := int((total + int64(f.PageSize) - 1) / int64(f.PageSize))
	return &Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize, TotalPages: pages}, nil
}

func (s *Service) SetRole(ctx context.Context, actorID, id string, role Role) (*User, error) {
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if actorID == id {
		return nil, ErrSelfModification
	}
	u, err := s.update(ctx, id, func(u *User) error {
		u.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user role changed", "user_id", id, "role", role, "actor", actorID)
	return u, nil
}

func (s *Service) SetActive(ctx context.Context, actorID, id string, active bool) (*User, error) {
	if actorID == id {
		return nil, ErrSelfModification
	}
	u, err := s.update(ctx, id, func(u *User) error {
		u.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user status changed", "user_id", id, "active", active, "actor", actorID)
	return u, nil
}

func normalizeOptionalPhone(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", nil
	}
	p, ok := contact.NormalizePhone(phone)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidPhone, phone)
	}
	return p, nil
}

func clearDefault(addrs []Address) {
	for i := range addrs {
		addrs[i].IsDefault = false
	}
}
