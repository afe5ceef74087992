package document

import "fmt"

// Court is the rehabilitation court with jurisdiction over a case. Each
// court publishes its own checklist of supporting documents.
type Court string

const (
	CourtDaegu    Court = "daegu"
	CourtBusan    Court = "busan"
	CourtDaejeon  Court = "daejeon"
	CourtJeonju   Court = "jeonju"
	CourtCheongju Court = "cheongju"
)

var standardChecklist = []Type{
	FamilyRelationCert,
	ResidentRegister,
	HealthInsuranceCert,
	PensionCert,
	IncomeCert,
	LocalTaxCert,
	LandRegistry,
	RealEstateRegister,
	VehicleRegister,
	InsuranceStatus,
	BankStatement,
	CreditEducationCert,
}

var checklists = map[Court][]Type{
	CourtDaegu: standardChecklist,
	CourtBusan: {
		FamilyRelationCert,
		MarriageCert,
		ResidentRegister,
		ResidentAbstract,
		HealthInsuranceCert,
		PensionCert,
		IncomeCert,
		HealthInsurancePayment,
		LocalTaxCert,
		LandRegistry,
		RealEstateRegister,
		BuildingRegister,
		LandRegister,
		VehicleRegister,
		VehiclePrice,
		InsuranceStatus,
		InsuranceRefund,
		BankStatement,
		CreditCardStatement,
		CreditEducationCert,
	},
	CourtDaejeon:  standardChecklist,
	CourtJeonju:   standardChecklist,
	CourtCheongju: standardChecklist,
}

// RequiredFor returns a copy of the court's document checklist.
func RequiredFor(c Court) ([]Type, error) {
	list, ok := checklists[c]
	if !ok {
		return nil, fmt.Errorf("unknown court %q", c)
	}
	return append([]Type(nil), list...), nil
}
