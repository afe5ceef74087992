// Package document holds the reference data for document types: stable
// identifiers, display labels, issue-guide URLs and per-court checklists.
package document

import (
	"fmt"
	"sort"
)

// Type identifies a document kind required in a rehabilitation case.
type Type string

const (
	// Identity and residence
	FamilyRelationCert   Type = "family_relation_cert"
	MarriageCert         Type = "marriage_cert"
	ResidentRegister     Type = "resident_register"
	ResidentAbstract     Type = "resident_abstract"
	LeaseContract        Type = "lease_contract"
	FreeResidenceConfirm Type = "free_residence_confirm"

	// Debt
	DebtCertificate Type = "debt_certificate"

	// Property
	LocalTaxCert       Type = "local_tax_cert"
	LandRegistry       Type = "land_registry"
	RealEstateRegister Type = "real_estate_register"
	BuildingRegister   Type = "building_register"
	LandRegister       Type = "land_register"
	VehicleRegister    Type = "vehicle_register"
	VehiclePrice       Type = "vehicle_price"
	InsuranceStatus    Type = "insurance_status"
	InsuranceRefund    Type = "insurance_refund"

	// Income
	HealthInsuranceCert    Type = "health_insurance_cert"
	PensionCert            Type = "pension_cert"
	IncomeCert             Type = "income_cert"
	HealthInsurancePayment Type = "health_insurance_payment"
	EmploymentCert         Type = "employment_cert"
	SalaryStatement        Type = "salary_statement"
	WithholdingTax         Type = "withholding_tax"
	SeveranceCert          Type = "severance_cert"
	BusinessLicense        Type = "business_license"
	VATCert                Type = "vat_cert"
	FinancialStatement     Type = "financial_statement"

	// Other
	BankStatement       Type = "bank_statement"
	CreditCardStatement Type = "credit_card_statement"
	CreditEducationCert Type = "credit_education_cert"
	PreviousCaseDocs    Type = "previous_case_docs"
	DivorceDocs         Type = "divorce_docs"
	Other               Type = "other"
)

var labels = map[Type]string{
	FamilyRelationCert:     "가족관계증명서",
	MarriageCert:           "혼인관계증명서",
	ResidentRegister:       "주민등록등본",
	ResidentAbstract:       "주민등록초본",
	LeaseContract:          "임대차계약서",
	FreeResidenceConfirm:   "무상거주확인서",
	DebtCertificate:        "부채증명서",
	LocalTaxCert:           "지방세 세목별 과세증명서",
	LandRegistry:           "지적전산자료조회결과",
	RealEstateRegister:     "등기사항전부증명서",
	BuildingRegister:       "건축물대장",
	LandRegister:           "토지대장",
	VehicleRegister:        "자동차등록원부",
	VehiclePrice:           "자동차 시가확인자료",
	InsuranceStatus:        "보험가입내역조회",
	InsuranceRefund:        "해약환급금 내역",
	HealthInsuranceCert:    "건강보험자격득실확인서",
	PensionCert:            "연금산정용 가입내역확인서",
	IncomeCert:             "소득금액증명",
	HealthInsurancePayment: "건강보험료확인서",
	EmploymentCert:         "재직증명서",
	SalaryStatement:        "급여명세서",
	WithholdingTax:         "근로소득원천징수영수증",
	SeveranceCert:          "퇴직금확인서",
	BusinessLicense:        "사업자등록증",
	VATCert:                "부가가치세과세표준증명",
	FinancialStatement:     "표준재무제표증명",
	BankStatement:          "금융계좌 거래내역서",
	CreditCardStatement:    "신용카드 사용내역서",
	CreditEducationCert:    "신용교육 이수증",
	PreviousCaseDocs:       "과거 회생/파산 서류",
	DivorceDocs:            "이혼 관련 서류",
	Other:                  "기타 서류",
}

var guideURLs = map[Type]string{
	FamilyRelationCert:  "https://www.gov.kr/mw/AA020InfoCappView.do?HighCtgCD=A01010&CappBizCD=13100000015",
	MarriageCert:        "https://www.gov.kr/mw/AA020InfoCappView.do?HighCtgCD=A01010&CappBizCD=13100000016",
	ResidentRegister:    "https://www.gov.kr/mw/AA020InfoCappView.do?HighCtgCD=A01010&CappBizCD=12500000029",
	ResidentAbstract:    "https://www.gov.kr/mw/AA020InfoCappView.do?HighCtgCD=A01010&CappBizCD=12500000030",
	LocalTaxCert:        "https://www.wetax.go.kr",
	RealEstateRegister:  "https://www.iros.go.kr",
	BuildingRegister:    "https://www.gov.kr/mw/AA020InfoCappView.do?HighCtgCD=A09002&CappBizCD=15000000066",
	LandRegister:        "https://www.gov.kr/mw/AA020InfoCappView.do?HighCtgCD=A09002&CappBizCD=15000000073",
	VehicleRegister:     "https://www.gov.kr/mw/AA020InfoCappView.do?HighCtgCD=A09006&CappBizCD=15100000177",
	InsuranceStatus:     "https://www.credit4u.or.kr",
	HealthInsuranceCert: "https://www.nhis.or.kr",
	PensionCert:         "https://www.nps.or.kr",
	IncomeCert:          "https://www.hometax.go.kr",
	VATCert:             "https://www.hometax.go.kr",
	FinancialStatement:  "https://www.hometax.go.kr",
	CreditEducationCert: "https://www.educredit.or.kr",
}

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	_, ok := labels[t]
	return ok
}

// Label returns the Korean display name, or the raw identifier if unknown.
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// GuideURL returns where the document can be issued manually, if known.
func (t Type) GuideURL() (string, bool) {
	u, ok := guideURLs[t]
	return u, ok
}

// Parse validates s as a document type.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown document type %q", s)
	}
	return t, nil
}

// All returns every known type sorted by identifier.
func All() []Type {
	out := make([]Type, 0, len(labels))
	for t := range labels {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
