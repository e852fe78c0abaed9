package transfer

import "runtime"

func numCPU() int { return runtime.NumCPU() }
