package rbac

func allOn(resource Resource, perms ...Permission) []Rule {
	out := make([]Rule, 0, len(perms))
	for _, p := range perms {
		out = append(out, Rule{Permission: p, Resource: resource})
	}
	return out
}

func when(perm Permission, resource Resource, conds ...Condition) Rule {
	return Rule{Permission: perm, Resource: resource, Conditions: conds}
}

func concat(groups ...[]Rule) []Rule {
	var out []Rule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// DefaultDocument returns the stock club policy: admins hold everything,
// coaches manage their own team and approve its family members, players see
// their team and their own data, and family members need coach approval.
func DefaultDocument() Document {
	return Document{
		PermittedHours: Hours{Start: 6, End: 22},
		Roles: map[string][]Rule{
			RoleAdmin: concat(
				allOn(ResourcePlayers, ViewPlayers, CreatePlayers, EditPlayers, DeletePlayers, ApproveAccess),
				allOn(ResourceTraining, ViewTraining, ManageTraining),
				allOn(ResourceMatches, ViewMatches, ManageMatches),
				allOn(ResourceStatistics, ViewStatistics, EditStatistics),
				allOn(ResourceReports, ViewReports, GenerateReports),
				allOn(ResourceUsers, ManageUsers),
				allOn(ResourceProfile, ViewProfile, EditProfile),
			),
			RoleCoach: concat(
				allOn(ResourcePlayers, ViewPlayers, CreatePlayers, DeletePlayers),
				[]Rule{
					when(EditPlayers, ResourcePlayers, SameTeam),
					when(ApproveAccess, ResourcePlayers, SameTeam),
					when(ViewTraining, ResourceTraining, SameTeam),
					when(ManageTraining, ResourceTraining, SameTeam),
					when(ViewMatches, ResourceMatches, SameTeam),
					when(ManageMatches, ResourceMatches, SameTeam),
					when(ViewStatistics, ResourceStatistics, SameTeam),
					when(EditStatistics, ResourceStatistics, SameTeam),
				},
				allOn(ResourceReports, ViewReports, GenerateReports),
				allOn(ResourceProfile, ViewProfile, EditProfile),
			),
			RolePlayer: {
				when(ViewPlayers, ResourcePlayers, SameTeam),
				when(ViewTraining, ResourceTraining, SameTeam),
				when(ViewMatches, ResourceMatches, SameTeam),
				when(ViewStatistics, ResourceStatistics, OwnData),
				when(ViewProfile, ResourceProfile, OwnData),
				when(EditProfile, ResourceProfile, OwnData),
			},
			RoleFamily: {
				when(ViewPlayers, ResourcePlayers, ApprovedByCoach),
				when(ViewTraining, ResourceTraining, ApprovedByCoach),
				when(ViewMatches, ResourceMatches, ApprovedByCoach, WithinHours),
				when(ViewStatistics, ResourceStatistics, ApprovedByCoach),
				when(ViewProfile, ResourceProfile, OwnData),
			},
		},
	}
}

// DefaultPolicy compiles DefaultDocument.
func DefaultPolicy() *Policy {
	p, err := Compile(DefaultDocument())
	if err != nil {
		panic("rbac: default policy does not compile: " + err.Error())
	}
	return p
}
