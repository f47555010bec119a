package moderation

import "strings"

// keywordGroup: группа запрещённых подстрок с общей меткой причины.
type keywordGroup struct {
	Name  string
	Terms []string
}

// denyList проверяется по порядку; первая найденная подстрока определяет причину отказа.
var denyList = []keywordGroup{
	{Name: "theft", Terms: []string{
		"steal", "stealing", "stolen", "rob", "robbing", "robbery", "burglary", "burglar",
		"shoplift", "shoplifting", "pickpocket", "theft", "thief", "loot", "looting",
	}},
	{Name: "drugs", Terms: []string{
		"drugs", "cocaine", "heroin", "meth", "weed", "marijuana", "dealer", "dealing",
	}},
	{Name: "weapons", Terms: []string{
		"gun", "weapon", "firearm", "explosive", "bomb",
	}},
	{Name: "fraud", Terms: []string{
		"scam", "fraud", "counterfeit", "fake id", "identity theft", "phishing",
	}},
	{Name: "other illegal", Terms: []string{
		"illegal", "hack", "hacking", "pirate", "piracy", "smuggle", "smuggling",
		"human trafficking", "prostitution", "escort service",
	}},
}

// matchKeyword ищет первую запрещённую подстроку в уже приведённом к нижнему регистру тексте.
func matchKeyword(lower string) (group, term string, ok bool) {
	for _, g := range denyList {
		for _, t := range g.Terms {
			if strings.Contains(lower, t) {
				return g.Name, t, true
			}
		}
	}
	return "", "", false
}
