package match

import "testing"

func TestDistributeEightyTwenty(t *testing.T) {
	d := Distribute(1000, Split{WinnerPercent: 80, OperatorPercent: 20})
	if d.Pool != 2000 {
		t.Errorf("pool = %d, want 2000", d.Pool)
	}
	if d.WinnerAmount != 1600 {
		t.Errorf("winner = %d, want 1600", d.WinnerAmount)
	}
	if d.OperatorFee != 400 {
		t.Errorf("fee = %d, want 400", d.OperatorFee)
	}
}

func TestDistributeSumIsExact(t *testing.T) {
	splits := []Split{
		{WinnerPercent: 80, OperatorPercent: 20},
		{WinnerPercent: 75, OperatorPercent: 25},
		{WinnerPercent: 99, OperatorPercent: 1},
		{WinnerPercent: 100, OperatorPercent: 0},
	}
	stakes := []int64{1, 3, 999, 1000, 2500, 333333}

	for _, s := range splits {
		for _, stake := range stakes {
			d := Distribute(stake, s)
			if d.WinnerAmount+d.OperatorFee != 2*stake {
				t.Errorf("Distribute(%d, %+v): %d + %d != %d", stake, s, d.WinnerAmount, d.OperatorFee, 2*stake)
			}
		}
	}
}

func TestDistributeFloorsWinnerShare(t *testing.T) {
	// pool 2*333 = 666, 80% = 532.8 -> winner 532, fee takes the remainder
	d := Distribute(333, Split{WinnerPercent: 80, OperatorPercent: 20})
	if d.WinnerAmount != 532 || d.OperatorFee != 134 {
		t.Errorf("got winner=%d fee=%d, want 532/134", d.WinnerAmount, d.OperatorFee)
	}
}

func TestSplitValidate(t *testing.T) {
	if err := (Split{WinnerPercent: 80, OperatorPercent: 20}).Validate(); err != nil {
		t.Errorf("valid split rejected: %v", err)
	}
	if err := (Split{WinnerPercent: 80, OperatorPercent: 19}).Validate(); err == nil {
		t.Errorf("split not summing to 100 should be rejected")
	}
	if err := (Split{WinnerPercent: 120, OperatorPercent: -20}).Validate(); err == nil {
		t.Errorf("negative percentage should be rejected")
	}
}
