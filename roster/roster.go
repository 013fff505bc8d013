// Package roster is the admin side of employee management.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"attendserver/apperr"
	"attendserver/attendauth"
	log "attendserver/cloudlog"
	"attendserver/collections"

	"github.com/sirupsen/logrus"
)

type registrar interface {
	Register(ctx context.Context, in attendauth.SignupInput) (*collections.Profile, error)
}

type accounts interface {
	DisableAccount(ctx context.Context, uid string) error
	RevokeSessions(ctx context.Context, uid string) error
}

type datastore interface {
	GetProfile(ctx context.Context, uid string) (*collections.Profile, error)
	UpdateProfile(ctx context.Context, uid string, fields map[string]interface{}) error
	DeleteProfile(ctx context.Context, uid string) error
	ProfilesByRole(ctx context.Context, role string) ([]*collections.Profile, error)
}

// EmployeeInput is what an admin fills in to add an employee.
type EmployeeInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Position   string `json:"position"`
	Department string `json:"department"`
	Password   string `json:"password"`
}

// EmployeeUpdate carries the editable profile fields; nil fields are left alone.
type EmployeeUpdate struct {
	Name       *string `json:"name,omitempty"`
	Position   *string `json:"position,omitempty"`
	Department *string `json:"department,omitempty"`
}

// Roster manages employee accounts and profiles.
type Roster struct {
	registrar registrar
	accounts  accounts
	db        datastore
}

// New returns a Roster.
func New(registrar registrar, accounts accounts, db datastore) *Roster {
	return &Roster{registrar: registrar, accounts: accounts, db: db}
}

// Create adds an employee account and its profile.
func (r *Roster) Create(ctx context.Context, in EmployeeInput) (collections.UserInfo, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return collections.UserInfo{}, apperr.Invalid("name and email are required")
	}
	profile, err := r.registrar.Register(ctx, attendauth.SignupInput{
		Email:      in.Email,
		Password:   in.Password,
		Name:       in.Name,
		Role:       collections.RoleEmployee,
		Position:   strings.TrimSpace(in.Position),
		Department: strings.TrimSpace(in.Department),
	})
	if err != nil {
		return collections.UserInfo{}, err
	}
	log.WithFields(logrus.Fields{"uid": profile.UID}).Info("Employee added")
	return profile.Info(), nil
}

// Update edits an employee's name, position or department.
func (r *Roster) Update(ctx context.Context, uid string, in EmployeeUpdate) (collections.UserInfo, error) {
	profile, err := r.employee(ctx, uid)
	if err != nil {
		return collections.UserInfo{}, err
	}
	fields := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return collections.UserInfo{}, apperr.Invalid("name cannot be empty")
		}
		fields[collections.NameKey] = name
		profile.Name = name
	}
	if in.Position != nil {
		fields[collections.PositionKey] = strings.TrimSpace(*in.Position)
		profile.Position = strings.TrimSpace(*in.Position)
	}
	if in.Department != nil {
		fields[collections.DepartmentKey] = strings.TrimSpace(*in.Department)
		profile.Department = strings.TrimSpace(*in.Department)
	}
	if len(fields) == 0 {
		return profile.Info(), nil
	}
	if err := r.db.UpdateProfile(ctx, uid, fields); err != nil {
		return collections.UserInfo{}, apperr.Store(err)
	}
	return profile.Info(), nil
}

// Delete removes an employee from the roster. The profile is kept, marked deleted, and the
// account is disabled so it can no longer sign in.
func (r *Roster) Delete(ctx context.Context, uid string) error {
	if _, err := r.employee(ctx, uid); err != nil {
		return err
	}
	if err := r.db.DeleteProfile(ctx, uid); err != nil {
		return apperr.Store(err)
	}
	fields := logrus.Fields{"uid": uid}
	if err := r.accounts.DisableAccount(ctx, uid); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		log.WithFields(fields).WithError(err).Error("Failed to disable removed employee")
		return err
	}
	if err := r.accounts.RevokeSessions(ctx, uid); err != nil {
		log.WithFields(fields).WithError(err).Warn("Failed to revoke sessions of removed employee")
	}
	log.WithFields(fields).Info("Employee removed")
	return nil
}

// List gives the active employees sorted by name.
func (r *Roster) List(ctx context.Context) ([]collections.UserInfo, error) {
	profiles, err := r.db.ProfilesByRole(ctx, collections.RoleEmployee)
	if err != nil {
		return nil, apperr.Store(err)
	}
	infos := make([]collections.UserInfo, 0, len(profiles))
	for _, p := range profiles {
		infos = append(infos, p.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

func (r *Roster) employee(ctx context.Context, uid string) (*collections.Profile, error) {
	profile, err := r.db.GetProfile(ctx, uid)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !profile.IsEmployee() {
		return nil, fmt.Errorf("%w: %s is not an employee", apperr.ErrNotFound, uid)
	}
	return profile, nil
}
