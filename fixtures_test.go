package main

// Fortran sources shared by the extractor, resolver and command tests.

const dgesvSource = `*> \brief DGESV computes the solution to a real system of linear equations
*>
*  Arguments:
*  ==========
*
*> \param[in] N
*> \verbatim
*>          N is INTEGER
*>          The number of linear equations.  N >= 0.
*> \endverbatim
*>
*> \param[in] NRHS
*> \verbatim
*>          NRHS is INTEGER
*> \endverbatim
*>
*> \param[in,out] A
*> \verbatim
*>          A is DOUBLE PRECISION array, dimension (LDA,N)
*> \endverbatim
*>
*> \param[in] LDA
*> \verbatim
*>          LDA is INTEGER
*> \endverbatim
*>
*> \param[out] IPIV
*> \verbatim
*>          IPIV is INTEGER array, dimension (N)
*>          The pivot indices that define the permutation matrix P.
*> \endverbatim
*>
*> \param[in,out] B
*> \param[in] LDB
*> \param[out] INFO
*> \verbatim
*>          INFO is INTEGER
*>          = 0:  successful exit
*>          < 0:  if INFO = -i, the i-th argument had an illegal value
*> \endverbatim
*
      SUBROUTINE DGESV( N, NRHS, A, LDA, IPIV, B, LDB, INFO )
*
*     .. Scalar Arguments ..
      INTEGER            INFO, LDA, LDB, N, NRHS
*     ..
*     .. Array Arguments ..
      INTEGER            IPIV( * )
      DOUBLE PRECISION   A( LDA, * ), B( LDB, * )
*     ..
      INFO = 0
      CALL DGETRF( N, N, A, LDA, IPIV,
     $             INFO )
      RETURN
      END
`

const dsyevqSource = `! Eigenvalues of a symmetric matrix, with a workspace size query.
!> \param[in] JOBZ
!> \verbatim
!>          JOBZ is CHARACTER*1
!> \endverbatim
!> \param[in] N
!> \param[in,out] A
!>          A is DOUBLE PRECISION array, dimension (LDA, N)
!> \param[in] LDA
!> \param[out] W
!> \param[out] IWORK
!> \verbatim
!>          IWORK is INTEGER array, dimension (MAX(1,LIWORK))
!> \endverbatim
!> \param[in] LIWORK
!> \verbatim
!>          LIWORK is INTEGER
!>          If LIWORK = -1, then a workspace query is assumed; the
!>          routine only calculates the optimal size of the IWORK array.
!> \endverbatim
!> \param[out] INFO
subroutine dsyevq(jobz, n, a, lda, w, iwork, liwork, info)
  character, intent(in) :: jobz
  integer, intent(in) :: n, lda
  integer :: liwork
  double precision, intent(inout) :: a(lda, *)
  double precision, intent(out) :: w(*)
  integer, intent(out) :: iwork(*) ! sized by liwork
  integer, intent(out) :: info
  info = 0
end subroutine dsyevq
`

const callbackSource = `subroutine dcallb(select, n, info)
  logical, external :: select
  integer, intent(in) :: n
  integer, intent(out) :: info
  info = 0
end subroutine dcallb
`

const ifooSource = `      INTEGER FUNCTION IFOO( N, K )
*
*  Arguments
*  =========
*
*  N       (input) INTEGER
*          The order.
*
*  K       (input) INTEGER
*          If K = -1, the default block size is used.
*
      INTEGER N, K
      IFOO = N
      END
`

const duplicateSource = `      SUBROUTINE DGESV( N )
      INTEGER N
      END
`

// dgesvSignature is what the extractor reads from dgesvSource.
func dgesvSignature() *RoutineSignature {
	return &RoutineSignature{
		Name: "dgesv",
		Params: []ParameterDescriptor{
			{Name: "n", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirIn, Role: Role{Tag: RoleArrayLengthOf, Of: "ipiv"}},
			{Name: "nrhs", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirIn, Role: Role{Tag: RoleNone}},
			{Name: "a", Kind: KindDouble, Shape: Shape{Rank: RankArray}, Direction: DirInOut, Role: Role{Tag: RoleNone}},
			{Name: "lda", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirIn, Role: Role{Tag: RoleNone}},
			{Name: "ipiv", Kind: KindInteger, Shape: Shape{Rank: RankArray, Length: "n"}, Direction: DirOut, Role: Role{Tag: RoleNone}},
			{Name: "b", Kind: KindDouble, Shape: Shape{Rank: RankArray}, Direction: DirInOut, Role: Role{Tag: RoleNone}},
			{Name: "ldb", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirIn, Role: Role{Tag: RoleNone}},
			{Name: "info", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirOut, Role: Role{Tag: RoleErrorCode}},
		},
		Source: "dgesv.f",
	}
}

// dsyevqSignature is what the extractor reads from dsyevqSource.
func dsyevqSignature() *RoutineSignature {
	return &RoutineSignature{
		Name: "dsyevq",
		Params: []ParameterDescriptor{
			{Name: "jobz", Kind: KindCharacter, Shape: Shape{Rank: RankScalar}, Direction: DirIn, Role: Role{Tag: RoleNone}},
			{Name: "n", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirIn, Role: Role{Tag: RoleNone}},
			{Name: "a", Kind: KindDouble, Shape: Shape{Rank: RankArray}, Direction: DirInOut, Role: Role{Tag: RoleNone}},
			{Name: "lda", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirIn, Role: Role{Tag: RoleNone}},
			{Name: "w", Kind: KindDouble, Shape: Shape{Rank: RankArray}, Direction: DirOut, Role: Role{Tag: RoleNone}},
			{Name: "iwork", Kind: KindInteger, Shape: Shape{Rank: RankArray, Length: "max(1,liwork)"}, Direction: DirOut, Role: Role{Tag: RoleNone}},
			{Name: "liwork", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirInOut, Role: Role{Tag: RoleWorkspaceQuery}},
			{Name: "info", Kind: KindInteger, Shape: Shape{Rank: RankScalar}, Direction: DirOut, Role: Role{Tag: RoleErrorCode}},
		},
		Source: "dsyevq.f90",
	}
}
