package contacts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"psyconsult-chat/internal/models"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Directory is the part of the backend the resolver reads from.
type Directory interface {
	ListPatientsOf(ctx context.Context, psychologistID string) ([]models.Profile, error)
	ListPsychologists(ctx context.Context) ([]models.Profile, error)
	GetPatient(ctx context.Context, patientID string) (models.Profile, error)
}

const (
	sourcePatients      = "patients"
	sourcePsychologists = "psychologists"
)

// Result is the outcome of a resolution. Partial is non-nil when some
// sub-fetch failed and Contacts only holds what the others returned.
type Result struct {
	Contacts []models.Contact
	Partial  *models.PartialLoadError
}

// Resolver lists the people a user may start a conversation with.
type Resolver struct {
	dir   Directory
	log   *zap.Logger
	cache *cache.Cache
}

// NewResolver creates a Resolver. c may be nil to disable caching.
func NewResolver(dir Directory, c *cache.Cache, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{dir: dir, cache: c, log: log.Named("contacts")}
}

// Resolve returns the contacts of userID acting as role.
func (r *Resolver) Resolve(ctx context.Context, userID string, role models.Role) (Result, error) {
	if !role.Valid() {
		return Result{}, &models.ValidationError{Field: "role", Detail: string(role), Err: models.ErrInvalidRole}
	}

	key := cacheKey(userID, role)
	if r.cache != nil {
		if x, found := r.cache.Get(key); found {
			return Result{Contacts: append([]models.Contact(nil), x.([]models.Contact)...)}, nil
		}
	}

	var (
		res Result
		err error
	)
	switch role {
	case models.RolePsychologist:
		res, err = r.forPsychologist(ctx, userID)
	case models.RolePatient:
		res, err = r.forPatient(ctx, userID)
	}
	if err != nil {
		return Result{}, err
	}

	if res.Partial != nil {
		r.log.Warn("contacts partially loaded",
			zap.String("user_id", userID),
			zap.String("role", string(role)),
			zap.Error(res.Partial),
		)
	} else if r.cache != nil {
		r.cache.Set(key, append([]models.Contact(nil), res.Contacts...), cache.DefaultExpiration)
	}
	return res, nil
}

// Invalidate drops the cached contacts of userID.
func (r *Resolver) Invalidate(userID string) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(cacheKey(userID, models.RolePsychologist))
	r.cache.Delete(cacheKey(userID, models.RolePatient))
}

func (r *Resolver) forPsychologist(ctx context.Context, userID string) (Result, error) {
	var (
		wg                      sync.WaitGroup
		patients, psychologists []models.Profile
		patientsErr, psychErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		patients, patientsErr = r.dir.ListPatientsOf(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		psychologists, psychErr = r.dir.ListPsychologists(ctx)
	}()
	wg.Wait()

	partial := &models.PartialLoadError{}
	if patientsErr != nil {
		partial.Add(sourcePatients, patientsErr)
	}
	if psychErr != nil {
		partial.Add(sourcePsychologists, psychErr)
	}
	if patientsErr != nil && psychErr != nil {
		return Result{}, fmt.Errorf("load contacts: %w", errors.Join(patientsErr, psychErr))
	}

	seen := make(map[string]bool)
	var out []models.Contact
	for _, p := range patients {
		// The collection is filtered server-side, but only assigned
		// patients may ever be listed.
		if p.AssignedPsychologistID != userID || seen["p:"+p.ID] {
			continue
		}
		seen["p:"+p.ID] = true
		out = append(out, models.ContactFromProfile(p, models.RolePatient))
	}
	for _, p := range psychologists {
		if p.ID == userID || seen["s:"+p.ID] {
			continue
		}
		seen["s:"+p.ID] = true
		out = append(out, models.ContactFromProfile(p, models.RolePsychologist))
	}

	res := Result{Contacts: out}
	if !partial.Empty() {
		res.Partial = partial
	}
	return res, nil
}

func (r *Resolver) forPatient(ctx context.Context, userID string) (Result, error) {
	me, err := r.dir.GetPatient(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load contacts: %w", err)
	}
	if me.AssignedPsychologistID == "" {
		return Result{}, nil
	}

	psychologists, err := r.dir.ListPsychologists(ctx)
	if err != nil {
		// The assignment is known even if the profile is not.
		partial := &models.PartialLoadError{}
		partial.Add(sourcePsychologists, err)
		contact := models.ContactFromProfile(models.Profile{ID: me.AssignedPsychologistID}, models.RolePsychologist)
		return Result{Contacts: []models.Contact{contact}, Partial: partial}, nil
	}

	for _, p := range psychologists {
		if p.ID == me.AssignedPsychologistID {
			return Result{Contacts: []models.Contact{models.ContactFromProfile(p, models.RolePsychologist)}}, nil
		}
	}
	r.log.Warn("assigned psychologist missing from directory",
		zap.String("user_id", userID),
		zap.String("psychologist_id", me.AssignedPsychologistID),
	)
	contact := models.ContactFromProfile(models.Profile{ID: me.AssignedPsychologistID}, models.RolePsychologist)
	return Result{Contacts: []models.Contact{contact}}, nil
}

func cacheKey(userID string, role models.Role) string {
	return string(role) + ":" + userID
}
