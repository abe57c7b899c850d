package executor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"xeroexport/internal/xero"
	"xeroexport/pkg/models"
)

type taxRateKey struct {
	country models.Country
	rate    models.TaxRate
}

// Resolver translates domain references into ledger IDs, creating the remote
// record when it does not exist yet. Tax rates are memoized for the lifetime
// of the resolver; contacts are looked up on every call.
type Resolver struct {
	api Gateway
	log zerolog.Logger

	taxRates       []xero.TaxRate
	taxRatesLoaded bool
	taxRateCodes   map[taxRateKey]string
}

// NewResolver returns a resolver with an empty cache
func NewResolver(api Gateway, log zerolog.Logger) *Resolver {
	return &Resolver{
		api:          api,
		log:          log,
		taxRateCodes: make(map[taxRateKey]string),
	}
}

// Contact returns the ID of the contact with exactly the given name
func (r *Resolver) Contact(ctx context.Context, name string) (string, error) {
	const op = "resolve_contact"

	params := url.Values{}
	params.Set("where", fmt.Sprintf(`Name=="%s"`, strings.ReplaceAll(name, `"`, `\"`)))

	var found xero.ContactsResponse
	if err := r.api.Get(ctx, xero.PathContacts, params, &found); err != nil {
		return "", err
	}
	for _, contact := range found.Contacts {
		if contact.ContactID != "" {
			r.log.Debug().Msgf("Found existing contact with name: %s", name)
			r.log.Debug().Msgf("ID: %s", contact.ContactID)
			return contact.ContactID, nil
		}
	}

	r.log.Debug().Msgf("Creating new contact with name: %s", name)
	var created xero.ContactsResponse
	if err := r.api.Post(ctx, xero.PathContacts, xero.NewContact{Name: name}, &created); err != nil {
		return "", err
	}
	if len(created.Contacts) == 0 || created.Contacts[0].ContactID == "" {
		return "", NewDomainError(op, ErrEmptyResponse, fmt.Sprintf("contact %q", name))
	}

	id := created.Contacts[0].ContactID
	r.log.Debug().Msgf("Contact created with ID: %s", id)
	return id, nil
}

// TaxRate returns the ledger tax type code for a country and rate
func (r *Resolver) TaxRate(ctx context.Context, country models.Country, rate models.TaxRate) (string, error) {
	const op = "resolve_tax_rate"

	key := taxRateKey{country: country, rate: rate}
	if code, ok := r.taxRateCodes[key]; ok {
		return code, nil
	}

	existing, err := r.remoteTaxRates(ctx)
	if err != nil {
		return "", err
	}
	for _, candidate := range existing {
		if matchesTaxRate(candidate, country, rate) {
			r.log.Debug().Msgf("Using existing tax rate %s (%s) for %s %s", candidate.Name, candidate.TaxType, country.Code, rate)
			r.taxRateCodes[key] = candidate.TaxType
			return candidate.TaxType, nil
		}
	}

	newRate := xero.NewTaxRate{
		Name:          rate.XeroName(country),
		ReportTaxType: rate.XeroReportType(),
		TaxComponents: []xero.TaxComponent{
			{Name: "Tax", Rate: rate.Rate},
		},
	}
	r.log.Debug().Msgf("Creating tax rate %s", newRate.Name)

	var created xero.TaxRatesResponse
	if err := r.api.Post(ctx, xero.PathTaxRates, newRate, &created); err != nil {
		return "", err
	}
	if len(created.TaxRates) == 0 || created.TaxRates[0].TaxType == "" {
		return "", NewDomainError(op, ErrTaxRateUnavailable, fmt.Sprintf("%s (%s)", country.Code, rate))
	}

	code := created.TaxRates[0].TaxType
	r.taxRates = append(r.taxRates, created.TaxRates[0])
	r.taxRateCodes[key] = code
	return code, nil
}

func (r *Resolver) remoteTaxRates(ctx context.Context) ([]xero.TaxRate, error) {
	if r.taxRatesLoaded {
		return r.taxRates, nil
	}

	var resp xero.TaxRatesResponse
	if err := r.api.Get(ctx, xero.PathTaxRates, nil, &resp); err != nil {
		return nil, err
	}
	r.taxRates = resp.TaxRates
	r.taxRatesLoaded = true
	return r.taxRates, nil
}

// matchesTaxRate compares the effective rate as a decimal, so 20 matches 20.0000.
// A rate this resolver would create matches by exact name, since MOSS names
// carry the country name rather than its code.
func matchesTaxRate(candidate xero.TaxRate, country models.Country, rate models.TaxRate) bool {
	return candidate.Status == xero.TaxRateStatusActive &&
		candidate.ReportTaxType == rate.XeroReportType() &&
		candidate.EffectiveRate.Equal(rate.Decimal()) &&
		(strings.Contains(candidate.Name, country.Code) || candidate.Name == rate.XeroName(country))
}
