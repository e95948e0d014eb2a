package kvargs_test

import (
	"reflect"
	"testing"

	"github.com/wader/subsnap/internal/goffmpeg/internal/kvargs"
)

func TestMapToSortedArgs(t *testing.T) {
	actual := kvargs.MapToSortedArgs(
		map[string]string{"sub_charenc": "UTF-8", "-itsoffset": "1", "b": "2"},
		kvargs.OptionArg(":0"),
	)
	expected := []string{"-itsoffset:0", "1", "-b:0", "2", "-sub_charenc:0", "UTF-8"}
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("expected %q, got %q", expected, actual)
	}

	if actual := kvargs.MapToSortedArgs(nil, kvargs.OptionArg("")); len(actual) != 0 {
		t.Errorf("expected no args, got %q", actual)
	}
}
