package outputmetric

import "fmt"

// perUnit builds the common "cost / single count" metric.
func perUnit(id, outputName, outputUnit, metricName, paramName, paramLabel string) *Metric {
	m := &Metric{
		ID:         id,
		OutputName: outputName,
		OutputUnit: outputUnit,
		MetricName: metricName,
		Equation:   fmt.Sprintf("cost_output_sum / %s", paramName),
		Parameters: []Param{{Name: paramName, Label: paramLabel}},
	}
	m.calculate = func(cost float64, params map[string]float64) (float64, error) {
		v, err := m.param(params, paramName)
		if err != nil {
			return 0, err
		}
		return div(cost, v)
	}
	return m
}

// perProduct builds "cost / (a * b)" duration metrics; total output is a*b.
func perProduct(id, outputName, outputUnit, metricName string, a, b Param) *Metric {
	m := &Metric{
		ID:         id,
		OutputName: outputName,
		OutputUnit: outputUnit,
		MetricName: metricName,
		Equation:   fmt.Sprintf("cost_output_sum / (%s * %s)", a.Name, b.Name),
		Parameters: []Param{a, b},
	}
	m.calculate = func(cost float64, params map[string]float64) (float64, error) {
		av, err := m.param(params, a.Name)
		if err != nil {
			return 0, err
		}
		bv, err := m.param(params, b.Name)
		if err != nil {
			return 0, err
		}
		return div(cost, av*bv)
	}
	m.totalOutput = func(params map[string]float64) (float64, error) {
		av, err := m.param(params, a.Name)
		if err != nil {
			return 0, err
		}
		bv, err := m.param(params, b.Name)
		if err != nil {
			return 0, err
		}
		return av * bv, nil
	}
	return m
}

// perValue builds the currency-valued "(cost - value) / value" metrics used
// for cash and item distribution.
func perValue(id, outputName, outputUnit, metricName, paramName, paramLabel string) *Metric {
	m := &Metric{
		ID:               id,
		OutputName:       outputName,
		OutputUnit:       outputUnit,
		OutputAsCurrency: true,
		MetricName:       metricName,
		Equation:         fmt.Sprintf("(cost_output_sum - %s) / %s", paramName, paramName),
		Parameters:       []Param{{Name: paramName, Label: paramLabel}},
	}
	m.calculate = func(cost float64, params map[string]float64) (float64, error) {
		v, err := m.param(params, paramName)
		if err != nil {
			return 0, err
		}
		return div(cost-v, v)
	}
	return m
}

// All metrics, ordered by id for stable listings.
var registry = []*Metric{
	perUnit("NumberOfCaregivers", "Number of Caregivers", "Caregivers",
		"Cost per Caregiver", "number_of_caregivers", "Number of Caregivers"),
	perUnit("NumberOfChildren", "Number of Children", "Children",
		"Cost per Child", "number_of_children", "Number of Children"),
	perUnit("NumberOfChildrenRecovered", "Number of Children Recovered", "Children Recovered",
		"Cost per Child Recovered", "number_of_children_recovered", "Number of Children Recovered"),
	perUnit("NumberOfChildrenTreated", "Number of Children Treated (Excluding Defaulters)",
		"Children Treated (Excluding Defaulters)",
		"Cost per Child Treated", "number_of_children_treated",
		"Number of Children Treated (Excluding Defaulters)"),
	perUnit("NumberOfClients", "Number of Clients", "Clients",
		"Cost per Client", "number_of_clients", "Number of Clients"),
	perUnit("NumberOfCommunities", "Number of Communities", "Communities",
		"Cost per Community", "number_of_communities", "Number of Communities"),
	perUnit("NumberOfConsultations", "Number of Consultations", "Consultations",
		"Cost per Consultation", "number_of_consultations", "Number of Consultations"),
	perUnit("NumberOfCoupleYearsOfProtection", "Number of Couple-Years of Protection (CYPs)",
		"Couple-Years of Protection (CYPs)",
		"Cost per Couple per Year of Protection", "number_of_CYPs_provided",
		"Cost per Couple per Year of Protection"),
	perProduct("NumberOfDaysOfTraining", "Number of Days of Training", "Days of Training",
		"Cost per Person per Day of Training",
		Param{Name: "number_of_people", Label: "Number of People"},
		Param{Name: "number_of_days_of_training", Label: "Number of Days of Training"}),
	perUnit("NumberOfDoses", "Number of Doses", "Doses",
		"Cost per Dose", "number_of_doses", "Number of Doses"),
	perUnit("NumberOfGroups", "Number of Groups", "Groups",
		"Cost per Group", "number_of_groups", "Number of Groups"),
	perUnit("NumberOfHectares", "Number of Hectares", "Hectares",
		"Cost per Hectare", "number_of_hectares", "Number of Hectares"),
	perUnit("NumberOfHouseholds", "Number of Households", "Households",
		"Cost per Household", "number_of_households", "Number of Households"),
	perUnit("NumberOfMeals", "Number of Meals", "Meals",
		"Cost per Meal", "number_of_meals", "Number of Meals"),
	perUnit("NumberOfOutputs", "Number of Outputs", "Outputs",
		"Cost per Output", "number_of_outputs", "Number of Outputs"),
	perUnit("NumberOfParticipants", "Number of Participants", "Participant",
		"Cost per Participant", "number_of_participants", "Number of Participants"),
	perUnit("NumberOfPeople", "Number of People", "People",
		"Cost per Person", "number_of_people", "Number of People"),
	perProduct("NumberOfPersonYearsOfSanitationAccess", "Number of Person-Years of Sanitation Access",
		"Person-Years of Sanitation Access",
		"Cost per Person per Year of Sanitation Access",
		Param{Name: "number_of_people", Label: "Number of People Served"},
		Param{Name: "number_of_years_a_latrine_can_last", Label: "Number of Years a Latrine Can Last"}),
	perProduct("NumberOfPersonYearsOfWaterAccess", "Number of Person-Years of Water Access",
		"Person-Years of Water Access",
		"Cost per Person per Year of Water Access",
		Param{Name: "number_of_people", Label: "Number of People"},
		Param{Name: "number_of_years_of_water_access", Label: "Number of Years of Water Access"}),
	perProduct("NumberOfTeacherDaysOfTraining", "Number of Teacher-Days of Training",
		"Teacher-Days of Training",
		"Cost per Teacher per Day of Training",
		Param{Name: "number_of_teachers", Label: "Number of Teachers"},
		Param{Name: "number_of_days_of_training", Label: "Number of Days of Training"}),
	perProduct("NumberOfTeacherYearsOfSupport", "Number of Teacher-Years of Support",
		"Teacher-Years of Support",
		"Cost per Teacher per Year of Support",
		Param{Name: "number_of_teachers", Label: "Number of Teachers"},
		Param{Name: "number_of_years_of_support", Label: "Number of Years of Support"}),
	perUnit("NumberOfWomen", "Number of Women", "Women",
		"Cost per Woman", "number_of_women", "Number of Women"),
	perValue("ValueOfBusinessGrantAmount", "Value of Business Grant Amount", "Amount Provided",
		"Cost per Grant Cash Provided", "value_of_business_grant_amount",
		"Value of Business Grant Amount"),
	perValue("ValueOfCashDistributed", "Value of Cash Distributed", "Cash Distributed",
		"Cost per Cash Distributed", "value_of_cash_distributed", "Value of Cash Distributed"),
	perValue("ValueOfItemsDistributed", "Value of Items Distributed", "Items Distributed",
		"Cost per Monetary Unit Distributed", "value_items_distributed",
		"Value of Items Distributed"),
}

var byID = func() map[string]*Metric {
	m := make(map[string]*Metric, len(registry))
	for _, metric := range registry {
		m[metric.ID] = metric
	}
	return m
}()

// ByID returns the metric for an id, or nil.
func ByID(id string) *Metric {
	return byID[id]
}

// All returns every registered metric in id order.
func All() []*Metric {
	out := make([]*Metric, len(registry))
	copy(out, registry)
	return out
}
