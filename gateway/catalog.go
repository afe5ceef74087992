package gateway

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
)

// Field names an endpoint-specific option that must be present.
type Field string

const (
	FieldStartDate  Field = "startDate"
	FieldEndDate    Field = "endDate"
	FieldCarNo      Field = "carNo"
	FieldAddress    Field = "address"
	FieldBusinessNo Field = "businessNo"
)

const (
	DefaultCertType    = "KAKAO"
	CertTypeCertFile   = "CERT"
	defaultSuccessCode = "0000"
)

var (
	certTypes = map[string]bool{"KAKAO": true, "PASS": true, "NAVER": true, "PAYCO": true, "KB": true, "TOSS": true, CertTypeCertFile: true}
	telecoms  = map[string]bool{"SKT": true, "KT": true, "LGU": true, "SKT_MVNO": true, "KT_MVNO": true, "LGU_MVNO": true}

	registerTypes = map[string]string{"land": "1", "building": "2", "collective": "3"}

	reYearMonth = regexp.MustCompile(`^\d{4}(0[1-9]|1[0-2])$`)
	reYear      = regexp.MustCompile(`^\d{4}$`)
	reBizNo     = regexp.MustCompile(`^\d{10}$`)
)

// CertificateMaterial is the decrypted certificate needed when CertType is
// CERT. It must not outlive the call it was loaded for.
type CertificateMaterial struct {
	CertificatePayload string
	KeyPayload         string
	Password           string
}

// Options carries the per-endpoint request fields. Unused fields are ignored
// by endpoints that do not take them.
type Options struct {
	CertType     string `json:"cert_type,omitempty"`
	PhoneNo      string `json:"phone_no,omitempty"`
	Telecom      string `json:"telecom,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Year         string `json:"year,omitempty"`
	CarNo        string `json:"car_no,omitempty"`
	Address      string `json:"address,omitempty"`
	RegisterType string `json:"register_type,omitempty"`
	BusinessNo   string `json:"business_no,omitempty"`

	Certificate *CertificateMaterial `json:"-"`
}

func (o Options) value(f Field) string {
	switch f {
	case FieldStartDate:
		return o.StartDate
	case FieldEndDate:
		return o.EndDate
	case FieldCarNo:
		return o.CarNo
	case FieldAddress:
		return o.Address
	case FieldBusinessNo:
		return o.BusinessNo
	}
	return ""
}

// Request is one issuance call. Identity is the plaintext resident
// registration number; it is encrypted before leaving the process.
type Request struct {
	DocumentType document.Type
	Name         string
	Identity     string
	Options      Options
}

// Encrypter encrypts a single request field.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// RequestBuilder produces the JSON body for one endpoint.
type RequestBuilder interface {
	Build(req Request, enc Encrypter, now time.Time) (map[string]any, error)
}

// BuilderFunc adapts a function to RequestBuilder.
type BuilderFunc func(req Request, enc Encrypter, now time.Time) (map[string]any, error)

func (f BuilderFunc) Build(req Request, enc Encrypter, now time.Time) (map[string]any, error) {
	return f(req, enc, now)
}

// Descriptor maps a document type to its issuance endpoint.
type Descriptor struct {
	Type         document.Type
	Endpoint     string
	Label        string
	Required     []Field
	AutoIssuable bool
	BearerAuth   bool
	SuccessCode  string
	Builder      RequestBuilder
}

// Catalog is the immutable document type to endpoint table.
type Catalog struct {
	byType map[document.Type]Descriptor
}

func NewCatalog(ds ...Descriptor) (*Catalog, error) {
	c := &Catalog{byType: make(map[document.Type]Descriptor, len(ds))}
	for _, d := range ds {
		if d.Type == "" || d.Endpoint == "" || d.Builder == nil {
			return nil, fmt.Errorf("descriptor %q: type, endpoint and builder are required", d.Type)
		}
		if _, dup := c.byType[d.Type]; dup {
			return nil, fmt.Errorf("descriptor %q registered twice", d.Type)
		}
		if d.SuccessCode == "" {
			d.SuccessCode = defaultSuccessCode
		}
		if d.Label == "" {
			d.Label = d.Type.Label()
		}
		d.Required = append([]Field(nil), d.Required...)
		c.byType[d.Type] = d
	}
	return c, nil
}

func (c *Catalog) Lookup(t document.Type) (Descriptor, bool) {
	d, ok := c.byType[t]
	return d, ok
}

// AutoIssuable reports whether t can be issued with no extra options, which
// is what batch issuance relies on.
func (c *Catalog) AutoIssuable(t document.Type) bool {
	d, ok := c.byType[t]
	return ok && d.AutoIssuable
}

// Types returns the mapped document types sorted by identifier.
func (c *Catalog) Types() []document.Type {
	out := make([]document.Type, 0, len(c.byType))
	for t := range c.byType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultCatalog is the Hyphen endpoint table.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Descriptor{Type: document.ResidentRegister, Endpoint: "/v1/gov24/resident/copy", AutoIssuable: true, BearerAuth: true, Builder: BuilderFunc(buildResident)},
		Descriptor{Type: document.ResidentAbstract, Endpoint: "/v1/gov24/resident/abstract", AutoIssuable: true, BearerAuth: true, Builder: BuilderFunc(buildResident)},
		Descriptor{Type: document.LocalTaxCert, Endpoint: "/v1/gov24/tax/local", AutoIssuable: true, BearerAuth: true, Builder: BuilderFunc(buildIdentity)},
		Descriptor{Type: document.VehicleRegister, Endpoint: "/v1/gov24/vehicle/registration", Required: []Field{FieldCarNo}, BearerAuth: true, Builder: BuilderFunc(buildVehicle)},
		Descriptor{Type: document.HealthInsuranceCert, Endpoint: "/v1/nhis/qualification", AutoIssuable: true, Builder: BuilderFunc(buildIdentity)},
		Descriptor{Type: document.HealthInsurancePayment, Endpoint: "/v1/nhis/payment", Required: []Field{FieldStartDate, FieldEndDate}, Builder: BuilderFunc(buildPeriod)},
		Descriptor{Type: document.PensionCert, Endpoint: "/v1/nps/status", AutoIssuable: true, Builder: BuilderFunc(buildIdentity)},
		Descriptor{Type: document.EmploymentCert, Endpoint: "/v1/ei/status", AutoIssuable: true, Builder: BuilderFunc(buildIdentity)},
		Descriptor{Type: document.RealEstateRegister, Endpoint: "/v1/court/realestate", Required: []Field{FieldAddress}, BearerAuth: true, Builder: BuilderFunc(buildRealEstate)},
		Descriptor{Type: document.BusinessLicense, Endpoint: "/v1/nts/business/status", Required: []Field{FieldBusinessNo}, Builder: BuilderFunc(buildBusiness)},
		Descriptor{Type: document.IncomeCert, Endpoint: "/v1/nts/income", AutoIssuable: true, Builder: BuilderFunc(buildIncome)},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// validate checks the fields shared by all endpoints plus d.Required.
func (d Descriptor) validate(req Request) error {
	for _, f := range d.Required {
		if strings.TrimSpace(req.Options.value(f)) == "" {
			return invalidRequest(d.Type, "%s is required", f)
		}
	}
	o := req.Options
	if o.CertType != "" && !certTypes[o.CertType] {
		return invalidRequest(d.Type, "unknown certType %q", o.CertType)
	}
	if o.CertType == CertTypeCertFile && (o.Certificate == nil || o.Certificate.KeyPayload == "" || o.Certificate.CertificatePayload == "") {
		return invalidRequest(d.Type, "certType CERT requires certificate material")
	}
	if o.Telecom != "" && !telecoms[o.Telecom] {
		return invalidRequest(d.Type, "unknown telecom %q", o.Telecom)
	}
	return nil
}

// ---- builders ----

func buildIdentity(req Request, enc Encrypter, _ time.Time) (map[string]any, error) {
	name := norm.NFC.String(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, invalidRequest(req.DocumentType, "name is required")
	}
	if req.Identity == "" {
		return nil, invalidRequest(req.DocumentType, "identity is required")
	}
	jumin, err := enc.Encrypt(strings.ReplaceAll(req.Identity, "-", ""))
	if err != nil {
		return nil, invalidRequest(req.DocumentType, "encrypting identity: %v", err)
	}
	certType := req.Options.CertType
	if certType == "" {
		certType = DefaultCertType
	}
	body := map[string]any{
		"name":     name,
		"jumin":    jumin,
		"certType": certType,
	}
	if certType == CertTypeCertFile {
		m := req.Options.Certificate
		pw, err := enc.Encrypt(m.Password)
		if err != nil {
			return nil, invalidRequest(req.DocumentType, "encrypting certificate password: %v", err)
		}
		body["der2pem"] = m.CertificatePayload
		body["key2pem"] = m.KeyPayload
		body["certPw"] = pw
	}
	return body, nil
}

func buildResident(req Request, enc Encrypter, now time.Time) (map[string]any, error) {
	body, err := buildIdentity(req, enc, now)
	if err != nil {
		return nil, err
	}
	if req.Options.PhoneNo != "" {
		body["phoneNo"] = strings.ReplaceAll(req.Options.PhoneNo, "-", "")
	}
	if req.Options.Telecom != "" {
		body["telecom"] = req.Options.Telecom
	}
	return body, nil
}

func buildVehicle(req Request, enc Encrypter, now time.Time) (map[string]any, error) {
	body, err := buildIdentity(req, enc, now)
	if err != nil {
		return nil, err
	}
	body["carNo"] = strings.ReplaceAll(norm.NFC.String(req.Options.CarNo), " ", "")
	return body, nil
}

func buildPeriod(req Request, enc Encrypter, now time.Time) (map[string]any, error) {
	o := req.Options
	if !reYearMonth.MatchString(o.StartDate) || !reYearMonth.MatchString(o.EndDate) {
		return nil, invalidRequest(req.DocumentType, "startDate and endDate must be YYYYMM")
	}
	if o.StartDate > o.EndDate {
		return nil, invalidRequest(req.DocumentType, "startDate %s is after endDate %s", o.StartDate, o.EndDate)
	}
	body, err := buildIdentity(req, enc, now)
	if err != nil {
		return nil, err
	}
	body["startDate"] = o.StartDate
	body["endDate"] = o.EndDate
	return body, nil
}

func buildIncome(req Request, enc Encrypter, now time.Time) (map[string]any, error) {
	year := req.Options.Year
	if year == "" {
		year = strconv.Itoa(now.Year() - 1)
	}
	if !reYear.MatchString(year) {
		return nil, invalidRequest(req.DocumentType, "year must be YYYY")
	}
	body, err := buildIdentity(req, enc, now)
	if err != nil {
		return nil, err
	}
	body["year"] = year
	return body, nil
}

// buildRealEstate does not send the individual's identity; the register is
// looked up by address.
func buildRealEstate(req Request, _ Encrypter, _ time.Time) (map[string]any, error) {
	rt, ok := registerTypes[req.Options.RegisterType]
	if !ok {
		rt = registerTypes["building"]
	}
	return map[string]any{
		"address":      norm.NFC.String(strings.TrimSpace(req.Options.Address)),
		"registerType": rt,
	}, nil
}

func buildBusiness(req Request, _ Encrypter, _ time.Time) (map[string]any, error) {
	no := strings.ReplaceAll(strings.TrimSpace(req.Options.BusinessNo), "-", "")
	if !reBizNo.MatchString(no) {
		return nil, invalidRequest(req.DocumentType, "businessNo must be 10 digits")
	}
	return map[string]any{"businessNo": no}, nil
}
