package schedule

import "medremind/internal/model"

// Template is a canned dosing pattern. The table is immutable; callers get
// copies, never the table's own slices.
type Template struct {
	Name        string
	Frequency   model.Frequency
	DoseTimes   []model.DoseTime
	Description string
}

var templateTable = []Template{
	{
		Name:      "twice_daily",
		Frequency: model.FrequencyTwiceDaily,
		DoseTimes: []model.DoseTime{
			{Time: "08:00", Label: "Morning"},
			{Time: "20:00", Label: "Evening"},
		},
		Description: "Morning and evening doses",
	},
	{
		Name:      "three_times_daily",
		Frequency: model.FrequencyThreeTimesDaily,
		DoseTimes: []model.DoseTime{
			{Time: "08:00", Label: "Morning"},
			{Time: "14:00", Label: "Afternoon"},
			{Time: "20:00", Label: "Evening"},
		},
		Description: "Morning, afternoon and evening doses",
	},
	{
		Name:      "before_meals",
		Frequency: model.FrequencyThreeTimesDaily,
		DoseTimes: []model.DoseTime{
			{Time: "07:30", Label: "Before breakfast"},
			{Time: "12:30", Label: "Before lunch"},
			{Time: "18:30", Label: "Before dinner"},
		},
		Description: "Thirty minutes before each meal",
	},
	{
		Name:      "four_times_daily",
		Frequency: model.FrequencyFourTimesDaily,
		DoseTimes: []model.DoseTime{
			{Time: "08:00", Label: "Morning"},
			{Time: "12:00", Label: "Noon"},
			{Time: "16:00", Label: "Afternoon"},
			{Time: "20:00", Label: "Evening"},
		},
		Description: "Every four hours while awake",
	},
}

// Templates lists the available dosing templates.
func Templates() []Template {
	out := make([]Template, len(templateTable))
	for i, t := range templateTable {
		out[i] = cloneTemplate(t)
	}
	return out
}

// TemplateByName looks a template up by its name.
func TemplateByName(name string) (Template, bool) {
	for _, t := range templateTable {
		if t.Name == name {
			return cloneTemplate(t), true
		}
	}
	return Template{}, false
}

func cloneTemplate(t Template) Template {
	t.DoseTimes = append([]model.DoseTime(nil), t.DoseTimes...)
	return t
}
