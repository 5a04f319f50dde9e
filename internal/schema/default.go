package schema

// Default returns the canonical catalog for the care-coordination
// extract set. Column order mirrors the upstream export layout.
// case_notes has no stable key upstream and is append-only.
func Default() *Catalog {
	c := NewCatalog()

	c.AddTable(&Table{
		Name:       "people",
		PrimaryKey: "person_id",
		Columns: []Column{
			{"person_id", TypeText},
			{"first_name", TypeText},
			{"last_name", TypeText},
			{"date_of_birth", TypeDate},
			{"gender", TypeText},
			{"race", TypeText},
			{"ethnicity", TypeText},
			{"language", TypeText},
			{"address", TypeText},
			{"city", TypeText},
			{"state", TypeText},
			{"zip", TypeText},
			{"phone", TypeText},
			{"email", TypeText},
			{"created_date", TypeTimestamp},
			{"updated_date", TypeTimestamp},
		},
	})

	c.AddTable(&Table{
		Name:       "cases",
		PrimaryKey: "case_id",
		Columns: []Column{
			{"case_id", TypeText},
			{"person_id", TypeText},
			{"program_id", TypeText},
			{"case_manager", TypeText},
			{"status", TypeText},
			{"open_date", TypeDate},
			{"close_date", TypeDate},
			{"close_reason", TypeText},
		},
	})

	c.AddTable(&Table{
		Name:       "referrals",
		PrimaryKey: "referral_id",
		Columns: []Column{
			{"referral_id", TypeText},
			{"person_id", TypeText},
			{"referred_by", TypeText},
			{"referred_to", TypeText},
			{"reason", TypeText},
			{"status", TypeText},
			{"referral_date", TypeDate},
		},
	})

	c.AddTable(&Table{
		Name:       "programs",
		PrimaryKey: "program_id",
		Columns: []Column{
			{"program_id", TypeText},
			{"program_name", TypeText},
			{"program_type", TypeText},
			{"start_date", TypeDate},
			{"end_date", TypeDate},
			{"capacity", TypeInt},
			{"active", TypeBool},
		},
	})

	c.AddTable(&Table{
		Name:       "organizations",
		PrimaryKey: "organization_id",
		Columns: []Column{
			{"organization_id", TypeText},
			{"organization_name", TypeText},
			{"organization_type", TypeText},
			{"address", TypeText},
			{"city", TypeText},
			{"state", TypeText},
			{"zip", TypeText},
			{"phone", TypeText},
		},
	})

	c.AddTable(&Table{
		Name:       "enrollments",
		PrimaryKey: "enrollment_id",
		Columns: []Column{
			{"enrollment_id", TypeText},
			{"person_id", TypeText},
			{"program_id", TypeText},
			{"enrollment_date", TypeDate},
			{"exit_date", TypeDate},
			{"exit_reason", TypeText},
			{"status", TypeText},
		},
	})

	c.AddTable(&Table{
		Name:       "encounters",
		PrimaryKey: "encounter_id",
		Columns: []Column{
			{"encounter_id", TypeText},
			{"person_id", TypeText},
			{"case_id", TypeText},
			{"encounter_type", TypeText},
			{"encounter_date", TypeTimestamp},
			{"duration_minutes", TypeInt},
			{"provider", TypeText},
			{"notes", TypeText},
		},
	})

	c.AddTable(&Table{
		Name:       "assessments",
		PrimaryKey: "assessment_id",
		Columns: []Column{
			{"assessment_id", TypeText},
			{"person_id", TypeText},
			{"assessment_type", TypeText},
			{"assessment_date", TypeDate},
			{"score", TypeReal},
			{"completed_by", TypeText},
		},
	})

	c.AddTable(&Table{
		Name:       "care_team_members",
		PrimaryKey: "care_team_member_id",
		Columns: []Column{
			{"care_team_member_id", TypeText},
			{"person_id", TypeText},
			{"member_name", TypeText},
			{"member_role", TypeText},
			{"organization_id", TypeText},
			{"start_date", TypeDate},
			{"end_date", TypeDate},
		},
	})

	c.AddTable(&Table{
		Name:       "services",
		PrimaryKey: "service_id",
		Columns: []Column{
			{"service_id", TypeText},
			{"person_id", TypeText},
			{"case_id", TypeText},
			{"service_type", TypeText},
			{"service_date", TypeDate},
			{"units", TypeReal},
			{"unit_cost", TypeReal},
			{"funding_source", TypeText},
		},
	})

	c.AddTable(&Table{
		Name: "case_notes",
		Columns: []Column{
			{"person_id", TypeText},
			{"case_id", TypeText},
			{"note_date", TypeTimestamp},
			{"author", TypeText},
			{"note_text", TypeText},
		},
	})

	c.AddIndex("idx_cases_person_id", "cases", "person_id")
	c.AddIndex("idx_referrals_person_id", "referrals", "person_id")
	c.AddIndex("idx_enrollments_person_id", "enrollments", "person_id")
	c.AddIndex("idx_encounters_person_id", "encounters", "person_id")
	c.AddIndex("idx_services_person_id", "services", "person_id")
	c.AddIndex("idx_case_notes_case_id", "case_notes", "case_id")

	return c
}
