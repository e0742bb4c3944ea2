package provisioning

import (
	"context"

	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/identity"
	"github.com/brickfolio/control-plane/shared/models"
	"github.com/brickfolio/control-plane/shared/sitedata"
)

// Step is one unit of the provisioning pipeline. Steps run with the tenant
// bound to the context, so every write they make is tenant-scoped. Done
// checks the step's postcondition; Run must be idempotent because a retried
// step may have partially applied before a crash.
type Step interface {
	Name() models.StepName
	Done(ctx context.Context, t *models.Tenant) (bool, error)
	Run(ctx context.Context, t *models.Tenant) error
}

// DefaultSteps wires the standard pipeline against the site data repo and
// the user directory.
func DefaultSteps(repo *sitedata.Repo, dir identity.Directory) []Step {
	return []Step{
		&createOwnerStep{repo: repo, dir: dir},
		&createAgencyStep{repo: repo},
		&createDefaultLinksStep{repo: repo},
		&createFieldKeysStep{repo: repo},
		&seedPropertiesStep{repo: repo},
	}
}

// createOwnerStep creates the owner account in the directory and records it.
type createOwnerStep struct {
	repo *sitedata.Repo
	dir  identity.Directory
}

func (s *createOwnerStep) Name() models.StepName { return models.StepCreateOwner }

func (s *createOwnerStep) Done(ctx context.Context, t *models.Tenant) (bool, error) {
	_, err := s.repo.OwnerUser(ctx)
	if errs.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *createOwnerStep) Run(ctx context.Context, t *models.Tenant) error {
	if t.OwnerEmail == "" {
		return errs.Invalid("tenant %s has no owner email", t.ID)
	}
	cognitoID, err := s.dir.CreateOwner(ctx, t.OwnerEmail, t.ID)
	if err != nil {
		return err
	}
	_, err = s.repo.CreateOwnerUser(ctx, cognitoID, t.OwnerEmail)
	return err
}

// createAgencyStep creates the tenant's agency profile.
type createAgencyStep struct {
	repo *sitedata.Repo
}

func (s *createAgencyStep) Name() models.StepName { return models.StepCreateAgency }

func (s *createAgencyStep) Done(ctx context.Context, t *models.Tenant) (bool, error) {
	_, err := s.repo.Agency(ctx)
	if errs.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *createAgencyStep) Run(ctx context.Context, t *models.Tenant) error {
	_, err := s.repo.CreateAgency(ctx, t.Name, t.OwnerEmail)
	return err
}

// createDefaultLinksStep seeds the standard site navigation.
type createDefaultLinksStep struct {
	repo *sitedata.Repo
}

func (s *createDefaultLinksStep) Name() models.StepName { return models.StepCreateDefaultLinks }

func (s *createDefaultLinksStep) Done(ctx context.Context, t *models.Tenant) (bool, error) {
	links, err := s.repo.Links(ctx)
	if err != nil {
		return false, err
	}
	return len(links) > 0, nil
}

func (s *createDefaultLinksStep) Run(ctx context.Context, t *models.Tenant) error {
	return s.repo.CreateLinks(ctx, []models.SiteLink{
		{Label: "Home", Path: "/", Position: 0},
		{Label: "Listings", Path: "/listings", Position: 1},
		{Label: "About", Path: "/about", Position: 2},
		{Label: "Contact", Path: "/contact", Position: 3},
	})
}

// createFieldKeysStep seeds the default listing attributes.
type createFieldKeysStep struct {
	repo *sitedata.Repo
}

func (s *createFieldKeysStep) Name() models.StepName { return models.StepCreateFieldKeys }

func (s *createFieldKeysStep) Done(ctx context.Context, t *models.Tenant) (bool, error) {
	keys, err := s.repo.FieldKeys(ctx)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

func (s *createFieldKeysStep) Run(ctx context.Context, t *models.Tenant) error {
	return s.repo.CreateFieldKeys(ctx, []models.FieldKey{
		{Key: "bedrooms", Label: "Bedrooms", Type: "number"},
		{Key: "bathrooms", Label: "Bathrooms", Type: "number"},
		{Key: "floor_area", Label: "Floor area (m²)", Type: "number"},
		{Key: "energy_rating", Label: "Energy rating", Type: "text"},
	})
}

// seedPropertiesStep inserts sample listings so a new site is never empty.
type seedPropertiesStep struct {
	repo *sitedata.Repo
}

func (s *seedPropertiesStep) Name() models.StepName { return models.StepSeedProperties }

func (s *seedPropertiesStep) Done(ctx context.Context, t *models.Tenant) (bool, error) {
	count, err := s.repo.SeededPropertyCount(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *seedPropertiesStep) Run(ctx context.Context, t *models.Tenant) error {
	return s.repo.CreateProperties(ctx, []models.Property{
		{Title: "Sample: Sunny two-bedroom apartment", Address: "12 Example Street", Price: 285000, Seeded: true},
		{Title: "Sample: Family home with garden", Address: "4 Demo Avenue", Price: 495000, Seeded: true},
		{Title: "Sample: City-centre studio", Address: "89 Placeholder Road", Price: 159000, Seeded: true},
	})
}
