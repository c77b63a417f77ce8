// Package labels holds the class catalog the butterfly model was trained on.
// Position in Names is the contract with the model's output vector.
package labels

import "strings"

// Count is the number of classes the model emits scores for.
const Count = 75

// Names maps output index to class name. Never reorder.
var Names = [Count]string{
	"ADONIS", "AFRICAN GIANT SWALLOWTAIL", "AMERICAN SNOOT", "AN 88", "APPOLLO",
	"ATALA", "BANDED ORANGE HELICONIAN", "BANDED PEACOCK", "BECKERS WHITE",
	"BLACK HAIRSTREAK", "BLUE MORPHO", "BLUE SPOTTED CROW", "BROWN SIPROETA",
	"CABBAGE WHITE", "CAIRNS BIRDWING", "CHECQUERED SKIPPER", "CHESTNUT",
	"CLEOPATRA", "CLODIUS PARNASSIAN", "CLOUDED SULPHUR", "COMMON BANDED AWL",
	"COMMON WOOD-NYMPH", "COPPER TAIL", "CRECENT", "CRIMSON PATCH",
	"DANAID EGGFLY", "EASTERN COMA", "EASTERN DAPPLE WHITE", "EASTERN PINE ELFIN",
	"ELBOWED PIERROT", "GOLD BANDED", "GREAT EGGFLY", "GREAT JAY",
	"GREEN CELLED CATTLEHEART", "GREY HAIRSTREAK", "INDRA SWALLOW",
	"IPHICLUS SISTER", "JULIA", "LARGE MARBLE", "MALACHITE", "MANGROVE SKIPPER",
	"MESTRA", "METALMARK", "MILBERTS TORTOISESHELL", "MONARCH", "MOURNING CLOAK",
	"ORANGE OAKLEAF", "ORANGE TIP", "ORCHARD SWALLOW", "PAINTED LADY",
	"PAPER KITE", "PEACOCK", "PINE WHITE", "PIPEVINE SWALLOW", "POPINJAY",
	"PURPLE HAIRSTREAK", "PURPLISH COPPER", "QUESTION MARK", "RED ADMIRAL",
	"RED CRACKER", "RED POSTMAN", "RED SPOTTED PURPLE", "SCARCE SWALLOW",
	"SILVER SPOT SKIPPER", "SLEEPY ORANGE", "SOOTYWING", "SOUTHERN DOGFACE",
	"STRAITED QUEEN", "TROPICAL LEAFWING", "TWO BARRED FLASHER", "ULYSES",
	"VICEROY", "WOOD SATYR", "YELLOW SWALLOW TAIL", "ZEBRA LONG WING",
}

var index = func() map[string]int {
	m := make(map[string]int, Count)
	for i, name := range Names {
		m[name] = i
	}
	return m
}()

// Name returns the class name at i and whether i is in range.
func Name(i int) (string, bool) {
	if i < 0 || i >= Count {
		return "", false
	}
	return Names[i], true
}

// Index looks a class up by name. Matching ignores case and surrounding space,
// so "Monarch" and "MONARCH" resolve to the same index.
func Index(name string) (int, bool) {
	i, ok := index[strings.ToUpper(strings.TrimSpace(name))]
	return i, ok
}

// All returns a copy of the table in index order.
func All() []string {
	out := make([]string, Count)
	copy(out, Names[:])
	return out
}
